package server

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/canline/slcan/internal/wireframe"
	"github.com/canline/slcan/internal/hub"
	"github.com/canline/slcan/internal/metrics"
)

// startWriter launches the goroutine pushing hub frames to a single client connection.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			}
			s.totalDisconnected.Add(1)
			logger.Info("client_disconnected")
		}()
		t := time.NewTicker(s.flushInterval)
		defer t.Stop()
		batch := make([]wireframe.Frame, 0, s.batchSize)
		statusInBatch := 0
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n := len(batch)
			nStatus := statusInBatch
			statusInBatch = 0
			if beTo, ok := s.Codec.(interface {
				EncodeTo(io.Writer, []wireframe.Frame) (int, error)
			}); ok {
				_, err := beTo.EncodeTo(conn, batch)
				batch = batch[:0]
				if err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return wrap
				}
				metrics.AddTCPTx(n)
				reportStatusFrames(nStatus, logger)
				return nil
			}
			var payload []byte
			if be, ok := s.Codec.(interface{ Encode([]wireframe.Frame) []byte }); ok {
				payload = be.Encode(batch)
			}
			batch = batch[:0]
			if _, err := conn.Write(payload); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return wrap
			}
			metrics.AddTCPTx(n)
			reportStatusFrames(nStatus, logger)
			return nil
		}
		for {
			select {
			case fr := <-cl.Out:
				batch = append(batch, fr)
				if fr.CANID&wireframe.ERRFlag != 0 {
					statusInBatch++
				}
				if len(batch) >= s.batchSize {
					if err := flush(); err != nil {
						return
					}
				}
			case <-t.C:
				if err := flush(); err != nil {
					return
				}
			case <-cl.Closed:
				_ = flush()
				return
			case <-ctxDone:
				_ = flush()
				return
			}
		}
	}()
}

// reportStatusFrames folds the count of synthetic adapter-status frames
// (bus error/warning/off) flushed in the last batch into metrics and, when
// any were present, a debug log line: a client that stops seeing data frames
// should still be able to tell from its logs that the bus itself went down.
func reportStatusFrames(n int, logger *slog.Logger) {
	for i := 0; i < n; i++ {
		metrics.IncStatusFrame()
	}
	if n > 0 {
		logger.Debug("status_frames_forwarded", "count", n)
	}
}
