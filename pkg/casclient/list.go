package casclient

import (
	"context"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

const listPageSize = 10000

// ListMode selects between every live object and only GC-marked ones.
type ListMode = wire.ListMode

const (
	ListDefault = wire.ListModeDefault
	ListGarbage = wire.ListModeGarbage
)

// List opens a listing and invokes fn once per key until the server
// reports an empty page, per spec.md §4.3's list-then-repeatedly-read rule.
func (c *Client) List(ctx context.Context, mode ListMode, minSize, maxSize uint64, fn func(caskey.Key) error) error {
	var openResult wire.ListResult
	if err := c.call(ctx, wire.MethodList, wire.ListArgs{Mode: mode, MinSize: minSize, MaxSize: maxSize}, &openResult); err != nil {
		return err
	}

	for {
		var page wire.ListReadResult
		err := c.call(ctx, wire.MethodListRead, wire.ListReadArgs{CursorID: openResult.CursorID, Count: listPageSize}, &page)
		if err != nil {
			return err
		}
		if len(page.Keys) == 0 {
			return nil
		}
		for _, b := range page.Keys {
			k, err := caskey.New(b)
			if err != nil {
				return errs.MalformedInput("casclient: server returned malformed key").Wrap(err)
			}
			if err := fn(k); err != nil {
				return err
			}
		}
	}
}
