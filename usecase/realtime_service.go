package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

type RealtimeService struct {
	connector domain.RealtimeConnector
}

func NewRealtimeService(connector domain.RealtimeConnector) *RealtimeService {
	return &RealtimeService{connector: connector}
}

// Execute bridges one client to one provider session until ctx is done, input
// is closed, or the provider ends the session. Frames from the provider are
// written to output; Execute never closes output and stops writing to it
// before returning. Failures are reported to the
// client as an error frame and returned classified.
func (s *RealtimeService) Execute(ctx context.Context, opts domain.RealtimeOptions, input <-chan domain.RealtimeFrame, output chan<- domain.RealtimeFrame) error {
	ctx, cancel := context.WithCancel(log.WithUserID(ctx, opts.UserID))
	defer cancel()
	session, err := s.connector.Connect(ctx, opts)
	if err != nil {
		classified := Classify(err)
		log.WithCtx(ctx).Warn("realtime connect failed", zap.String("kind", string(classified.Kind)), zap.Error(err))
		emit(ctx, output, domain.RealtimeFrame{Type: domain.RealtimeError, Error: classified.Message})
		return classified
	}
	defer session.Close()
	log.WithCtx(ctx).Info("realtime session started", zap.String("voice", opts.Voice))

	received := make(chan error, 1)
	receiverDone := make(chan struct{})
	go func() {
		defer close(receiverDone)
		for {
			frame, err := session.Receive()
			if err != nil {
				received <- err
				return
			}
			if ctx.Err() != nil {
				received <- ctx.Err()
				return
			}
			select {
			case output <- frame:
			case <-ctx.Done():
				received <- ctx.Err()
				return
			}
		}
	}()
	// The caller may close output once Execute returns, so the receiver must
	// be gone by then.
	defer func() {
		cancel()
		session.Close()
		<-receiverDone
	}()

	for {
		select {
		case frame, ok := <-input:
			if !ok {
				log.WithCtx(ctx).Info("realtime session ended by client")
				return nil
			}
			if err := validateRealtimeFrame(frame); err != nil {
				emit(ctx, output, domain.RealtimeFrame{Type: domain.RealtimeError, Error: err.Error()})
				continue
			}
			if err := session.Send(frame); err != nil {
				return fmt.Errorf("sending realtime frame: %w", err)
			}
		case err := <-received:
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				log.WithCtx(ctx).Info("realtime session ended by provider")
				return nil
			}
			classified := Classify(err)
			log.WithCtx(ctx).Warn("realtime session failed", zap.String("kind", string(classified.Kind)), zap.Error(err))
			emit(ctx, output, domain.RealtimeFrame{Type: domain.RealtimeError, Error: classified.Message})
			return classified
		case <-ctx.Done():
			log.WithCtx(ctx).Info("realtime session closed")
			return nil
		}
	}
}

func validateRealtimeFrame(frame domain.RealtimeFrame) error {
	switch frame.Type {
	case domain.RealtimeText:
		if frame.Text == "" {
			return errors.New("text frame requires text")
		}
	case domain.RealtimeAudio:
		if frame.Data == "" {
			return errors.New("audio frame requires data")
		}
	default:
		return fmt.Errorf("unsupported frame type %q", frame.Type)
	}
	return nil
}

func emit(ctx context.Context, output chan<- domain.RealtimeFrame, frame domain.RealtimeFrame) {
	select {
	case output <- frame:
	case <-ctx.Done():
	}
}
