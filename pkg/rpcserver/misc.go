package rpcserver

import (
	"context"
	"sync/atomic"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

func (s *Server) handleRemove(mux *wire.Mux, req wire.Request) {
	var args wire.RemoveArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding remove args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: remove requires a 20-byte key").Wrap(err))
		return
	}
	if err := s.store.Remove(key); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *Server) handleList(mux *wire.Mux, req wire.Request) {
	var args wire.ListArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding list args").Wrap(err))
		return
	}

	mode := storageserver.ListDefault
	if args.Mode == wire.ListModeGarbage {
		mode = storageserver.ListGarbage
	}
	maxSize := args.MaxSize
	if maxSize == 0 {
		maxSize = 1<<64 - 1
	}
	entries, err := s.store.List(mode, args.MinSize, maxSize)
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}

	id := atomic.AddUint64(&s.nextCursor, 1)
	s.cursorsMu.Lock()
	s.cursors[id] = &cursor{entries: entries}
	s.cursorsMu.Unlock()

	s.writeResult(mux, req.ID, wire.ListResult{CursorID: id})
}

func (s *Server) handleListRead(mux *wire.Mux, req wire.Request) {
	var args wire.ListReadArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding listRead args").Wrap(err))
		return
	}

	s.cursorsMu.Lock()
	c, ok := s.cursors[args.CursorID]
	if !ok {
		s.cursorsMu.Unlock()
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: unknown list cursor"))
		return
	}
	end := c.pos + int(args.Count)
	if end > len(c.entries) {
		end = len(c.entries)
	}
	page := c.entries[c.pos:end]
	c.pos = end
	exhausted := len(page) == 0
	if exhausted {
		delete(s.cursors, args.CursorID)
	}
	s.cursorsMu.Unlock()

	keys := make([][]byte, len(page))
	for i, e := range page {
		k := e.Key
		keys[i] = k[:]
	}
	s.writeResult(mux, req.ID, wire.ListReadResult{Keys: keys})
}

func (s *Server) handleCapacity(mux *wire.Mux, req wire.Request) {
	capacity, err := s.store.Capacity()
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, wire.CapacityResult{
		Total:       capacity.Total,
		Available:   capacity.Available,
		Unreclaimed: capacity.Unreclaimed,
		Garbage:     capacity.Garbage,
	})
}

func (s *Server) handleCompact(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.CompactArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding compact args").Wrap(err))
		return
	}
	if err := s.store.Compact(ctx, args.Sync); err != nil {
		s.writeErr(mux, req.ID, err)
		s.metrics.ObserveCompaction("error")
		return
	}
	s.metrics.ObserveCompaction("ok")
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *Server) handleBeginGC(mux *wire.Mux, req wire.Request) {
	id := s.store.BeginGC()
	s.metrics.SetGCGeneration(id)
	s.writeResult(mux, req.ID, wire.BeginGCResult{ID: id})
}

func (s *Server) handleMarkGC(mux *wire.Mux, req wire.Request) {
	var args wire.MarkGCArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding markGC args").Wrap(err))
		return
	}
	keys := make([]caskey.Key, 0, len(args.Keys))
	for _, b := range args.Keys {
		k, err := decodeKey(b)
		if err != nil {
			s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: markGC key decode").Wrap(err))
			return
		}
		keys = append(keys, k)
	}
	if err := s.store.MarkGC(keys); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *Server) handleEndGC(mux *wire.Mux, req wire.Request) {
	var args wire.EndGCArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding endGC args").Wrap(err))
		return
	}
	if err := s.store.EndGC(args.ID); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.metrics.SetGCGeneration(0)
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *Server) handleGetConfig(mux *wire.Mux, req wire.Request) {
	cfg := s.store.GetConfig()
	buckets := make([][]byte, len(cfg.Buckets))
	for i, b := range cfg.Buckets {
		k := b
		buckets[i] = k[:]
	}
	s.writeResult(mux, req.ID, wire.GetConfigResult{Buckets: buckets})
}
