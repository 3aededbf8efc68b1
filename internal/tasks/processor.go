package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/mail"
	"contactbook/internal/models"
	"contactbook/internal/queue"
)

type TokenIssuer interface {
	IssueVerificationToken(subject string, ttl time.Duration) (string, error)
}

type UserSource interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
	ListConfirmed(ctx context.Context, afterID int64, limit int) ([]models.User, error)
}

type BirthdaySource interface {
	UpcomingBirthdays(ctx context.Context, owner models.User, today time.Time) ([]models.Contact, error)
}

type Options struct {
	BaseURL         string
	VerificationTTL time.Duration
	DigestPageSize  int
}

// Processor turns outbox tasks into mail.
type Processor struct {
	tokens   TokenIssuer
	users    UserSource
	contacts BirthdaySource
	mailer   mail.Mailer
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewProcessor(tokens TokenIssuer, users UserSource, contacts BirthdaySource, mailer mail.Mailer, opts Options, logger zerolog.Logger) *Processor {
	if opts.DigestPageSize <= 0 {
		opts.DigestPageSize = 100
	}
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = 24 * time.Hour
	}
	return &Processor{
		tokens:   tokens,
		users:    users,
		contacts: contacts,
		mailer:   mailer,
		opts:     opts,
		logger:   logger.With().Str("component", "processor").Logger(),
		now:      time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case queue.TaskVerifyEmail:
		return p.handleVerifyEmail(ctx, task)
	case queue.TaskResetPassword:
		return p.handleResetPassword(ctx, task)
	case queue.TaskBirthdayDigest:
		return p.handleBirthdayDigest(ctx)
	default:
		p.logger.Warn().Str("type", string(task.Type)).Str("task_id", task.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleVerifyEmail(ctx context.Context, task queue.Task) error {
	user, ok, err := p.recipient(ctx, task)
	if err != nil || !ok {
		return err
	}
	if user.Confirmed {
		p.logger.Debug().Str("task_id", task.ID).Msg("email already confirmed, skipping")
		return nil
	}

	token, err := p.tokens.IssueVerificationToken(user.Username, p.opts.VerificationTTL)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	msg, err := mail.VerifyEmail(p.opts.BaseURL, user.Email, user.Username, token, p.opts.VerificationTTL)
	if err != nil {
		return err
	}
	return p.send(ctx, task, msg)
}

func (p *Processor) handleResetPassword(ctx context.Context, task queue.Task) error {
	user, ok, err := p.recipient(ctx, task)
	if err != nil || !ok {
		return err
	}

	token, err := p.tokens.IssueVerificationToken(user.Username, p.opts.VerificationTTL)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	msg, err := mail.ResetPassword(p.opts.BaseURL, user.Email, user.Username, token, p.opts.VerificationTTL)
	if err != nil {
		return err
	}
	return p.send(ctx, task, msg)
}

// handleBirthdayDigest mails every confirmed user their upcoming birthdays.
// A failure for one user is logged and does not stop the run.
func (p *Processor) handleBirthdayDigest(ctx context.Context) error {
	today := p.now()
	var (
		afterID int64
		sent    int
	)
	for {
		page, err := p.users.ListConfirmed(ctx, afterID, p.opts.DigestPageSize)
		if err != nil {
			return fmt.Errorf("list confirmed users: %w", err)
		}
		for _, user := range page {
			afterID = user.ID
			ok, err := p.sendDigest(ctx, user, today)
			if err != nil {
				p.logger.Error().Err(err).Int64("user_id", user.ID).Msg("birthday digest failed")
				continue
			}
			if ok {
				sent++
			}
		}
		if len(page) < p.opts.DigestPageSize {
			break
		}
	}
	p.logger.Info().Int("sent", sent).Msg("birthday digest complete")
	return nil
}

func (p *Processor) sendDigest(ctx context.Context, user models.User, today time.Time) (bool, error) {
	contacts, err := p.contacts.UpcomingBirthdays(ctx, user, today)
	if err != nil {
		return false, err
	}
	if len(contacts) == 0 {
		return false, nil
	}

	entries := make([]mail.DigestEntry, 0, len(contacts))
	for _, c := range contacts {
		entries = append(entries, mail.DigestEntry{
			Name:  c.FirstName + " " + c.LastName,
			Email: c.Email,
			Date:  c.Birthday.Format("Jan 2"),
		})
	}
	msg, err := mail.BirthdayDigest(user.Email, user.Username, entries)
	if err != nil {
		return false, err
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) recipient(ctx context.Context, task queue.Task) (models.User, bool, error) {
	user, err := p.users.GetByEmail(ctx, task.Email)
	if errors.Is(err, errs.ErrNotFound) {
		p.logger.Warn().Str("task_id", task.ID).Str("type", string(task.Type)).Msg("recipient no longer exists, dropping task")
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (p *Processor) send(ctx context.Context, task queue.Task, msg mail.Message) error {
	if err := p.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", task.Type, err)
	}
	p.logger.Info().Str("task_id", task.ID).Str("type", string(task.Type)).Msg("mail sent")
	return nil
}
