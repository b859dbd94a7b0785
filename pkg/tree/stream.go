package tree

import (
	"context"
	"fmt"
	"io"

	"github.com/verdantfs/verdant/pkg/codec"
	"github.com/verdantfs/verdant/pkg/types"
)

// ReadFileStream returns a lazy reader over the content behind a CID. Blocks
// are fetched on demand as the caller reads; the stream is finite and not
// restartable. The caller must Close it.
func (e *Engine) ReadFileStream(ctx context.Context, cid types.CID) (io.ReadCloser, error) {
	data, err := e.loadRaw(ctx, cid)
	if err != nil {
		return nil, err
	}

	s := &fileStream{engine: e, ctx: ctx}
	node, derr := codec.Decode(data)
	if derr == nil && node.Type == types.LinkFile {
		s.pending = append(s.pending, node.Links)
	} else {
		s.buf = data
	}
	return s, nil
}

// fileStream walks a file tree depth-first, holding at most one chunk plus
// the link lists of the nodes on the current path.
type fileStream struct {
	engine *Engine
	ctx    context.Context

	// pending is a stack of link lists still to be walked; the top of the
	// stack is the deepest node on the current path.
	pending [][]types.Link
	buf     []byte
	closed  bool
}

func (s *fileStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("tree: read from closed stream")
	}

	for len(s.buf) == 0 {
		if err := s.advance(); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// advance fetches the next leaf chunk into buf, or returns io.EOF when the
// walk is complete.
func (s *fileStream) advance() error {
	for {
		if len(s.pending) == 0 {
			return io.EOF
		}

		top := len(s.pending) - 1
		links := s.pending[top]
		if len(links) == 0 {
			s.pending = s.pending[:top]
			continue
		}

		link := links[0]
		s.pending[top] = links[1:]

		switch link.Type {
		case types.LinkBlob:
			chunk, err := s.engine.loadRaw(s.ctx, link.CID())
			if err != nil {
				return err
			}
			s.buf = chunk
			return nil
		case types.LinkFile:
			node, err := s.engine.loadNode(s.ctx, link.CID())
			if err != nil {
				return err
			}
			s.pending = append(s.pending, node.Links)
		default:
			return fmt.Errorf("%w: link type %s inside file node", types.ErrMalformedEncoding, link.Type)
		}
	}
}

func (s *fileStream) Close() error {
	s.closed = true
	s.pending = nil
	s.buf = nil
	return nil
}
