package bot

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"postbot/internal/messagelog"
	"postbot/internal/schedule"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const defaultSendRatePerSec = 25

// Sender wraps the transport adapter with outbound rate limiting and records
// every message the bot sends into the message registry, so later /edit_post
// and /delete_post calls can resolve what they operate on.
type Sender struct {
	adapter transport.Adapter
	msgs    *messagelog.Registry
	limiter *rate.Limiter
	log     logx.Logger
}

func NewSender(adapter transport.Adapter, msgs *messagelog.Registry, ratePerSec int, log logx.Logger) *Sender {
	if ratePerSec <= 0 {
		ratePerSec = defaultSendRatePerSec
	}
	return &Sender{
		adapter: adapter,
		msgs:    msgs,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (s *Sender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions, origin messagelog.Origin) (transport.MessageRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	ref, err := s.adapter.SendText(ctx, to, text, opt)
	if err != nil {
		return ref, err
	}
	s.msgs.Add(ref.ChatID, ref.MessageID, text, transport.ContentText, "", origin)
	return ref, nil
}

func (s *Sender) SendMedia(ctx context.Context, to transport.ChatTarget, media transport.Media, caption string, opt *transport.SendOptions, origin messagelog.Origin) (transport.MessageRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	ref, err := s.adapter.SendMedia(ctx, to, media, caption, opt)
	if err != nil {
		return ref, err
	}
	s.msgs.Add(ref.ChatID, ref.MessageID, caption, media.Kind, media.FileID, origin)
	return ref, nil
}

// EditText edits a previously sent text message and keeps the registry copy
// in sync.
func (s *Sender) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.adapter.EditText(ctx, ref, text, opt); err != nil {
		return err
	}
	s.msgs.UpdateText(ref.ChatID, ref.MessageID, text)
	return nil
}

func (s *Sender) EditMedia(ctx context.Context, ref transport.MessageRef, media transport.Media, caption string, opt *transport.SendOptions) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.adapter.EditMedia(ctx, ref, media, caption, opt); err != nil {
		return err
	}
	s.msgs.UpdateContent(ref.ChatID, ref.MessageID, messagelog.ContentPatch{
		ContentType: &media.Kind,
		Text:        &caption,
		FileID:      &media.FileID,
	})
	return nil
}

func (s *Sender) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
		return err
	}
	s.msgs.MarkDeleted(ref.ChatID, ref.MessageID)
	return nil
}

// Deliver publishes a scheduled job's content to its target chat. It is the
// delivery hook the job registry calls when a trigger fires.
func (s *Sender) Deliver(ctx context.Context, job schedule.JobData) error {
	target := transport.ChatTarget{ChatID: job.TargetChatID}
	origin := messagelog.Origin{Kind: messagelog.OriginScheduled, JobID: job.ID}
	opt := &transport.SendOptions{Entities: job.Entities}

	var err error
	switch job.ContentType {
	case transport.ContentText, "":
		_, err = s.SendText(ctx, target, job.Text, opt, origin)
	case transport.ContentPhoto, transport.ContentVideo, transport.ContentAnimation, transport.ContentDocument:
		media := transport.Media{Kind: job.ContentType, FileID: job.FileID}
		_, err = s.SendMedia(ctx, target, media, job.Text, opt, origin)
	default:
		err = fmt.Errorf("unsupported content type %q", job.ContentType)
	}
	if err != nil {
		s.log.Warn("job delivery failed",
			logx.Int64("job_id", job.ID),
			logx.Int64("target", job.TargetChatID),
			logx.Err(err),
		)
	}
	return err
}
