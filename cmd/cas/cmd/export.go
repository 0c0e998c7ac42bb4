package cmd

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// exportRecord is one exported object, framed with wire.WriteFrame the same
// way a request or response is: length-prefixed msgpack.
type exportRecord struct {
	Key  []byte
	Data []byte
}

const exportConcurrency = 100

var exportCmd = &cobra.Command{
	Use:   "export [PATH]",
	Short: "Write every live object, or those named by PATH, to standard output",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := newClient()

		keys := make(map[caskey.Key]struct{})

		if len(args) == 1 {
			if err := readKeyList(args[0], keys); err != nil {
				fatal("export: %v", err)
			}
		} else {
			err := client.List(ctx, listMode(), params.minSize, maxSize(), func(k caskey.Key) error {
				keys[k] = struct{}{}
				return nil
			})
			if err != nil {
				fatal("export: %v", err)
			}
		}

		for _, pattern := range params.exclude {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				fatal("export: %v", err)
			}
			for _, path := range matches {
				excluded := make(map[caskey.Key]struct{})
				if err := readKeyList(path, excluded); err != nil {
					fatal("export: %v", err)
				}
				for k := range excluded {
					delete(keys, k)
				}
			}
		}

		queue := make([]caskey.Key, 0, len(keys))
		for k := range keys {
			queue = append(queue, k)
		}

		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			outErr error
		)
		jobs := make(chan caskey.Key)
		concurrency := exportConcurrency
		if concurrency > len(queue) {
			concurrency = len(queue)
		}
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for key := range jobs {
					var buf bytes.Buffer
					if err := client.Get(ctx, key.String(), 0, 0, &buf); err != nil {
						mu.Lock()
						if outErr == nil {
							outErr = err
						}
						mu.Unlock()
						continue
					}
					rec := exportRecord{Key: key[:], Data: buf.Bytes()}
					mu.Lock()
					if err := wire.WriteFrame(os.Stdout, rec); err != nil && outErr == nil {
						outErr = err
					}
					mu.Unlock()
				}
			}()
		}
		for _, key := range queue {
			jobs <- key
		}
		close(jobs)
		wg.Wait()

		if outErr != nil {
			fatal("export: %v", outErr)
		}
	},
}

func readKeyList(path string, into map[caskey.Key]struct{}) error {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, err := caskey.Parse(line)
		if err != nil {
			return err
		}
		into[key] = struct{}{}
	}
	return scanner.Err()
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
