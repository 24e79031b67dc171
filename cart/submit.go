package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
	"github.com/hazyhaar/optsync/optstate"
)

// SubmitterConfig wires a Submitter to one session.
type SubmitterConfig struct {
	Doc     dom.Document
	Sched   loop.Scheduler
	Product *catalog.Product
	// Store returns the session's current option store. It is called at
	// submit time because recovery may swap the store.
	Store    func() *optstate.Store
	Service  Service
	Notifier Notifier
	Logger   *slog.Logger

	// Go runs a blocking service call off the loop. Default: a goroutine.
	Go func(fn func())
}

// Submitter runs the add-to-cart flow.
type Submitter struct {
	cfg SubmitterConfig
	asm *Assembler
	log *slog.Logger
}

// NewSubmitter returns a Submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Go == nil {
		cfg.Go = func(fn func()) { go fn() }
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewPageNotifier(cfg.Doc, cfg.Sched)
	}
	return &Submitter{cfg: cfg, asm: NewAssembler(), log: cfg.Logger}
}

// Prepare runs on the loop. It cancels the host's default action, builds the
// line item and validates it. A validation failure is shown to the user and
// returned as a *ValidationError.
func (s *Submitter) Prepare(ev *dom.Event) (LineItem, error) {
	if ev != nil {
		ev.PreventDefault()
	}
	p := s.cfg.Product
	item := s.asm.Assemble(s.cfg.Doc, p, s.cfg.Store())
	if err := Validate(p, item); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.reject(ve)
		}
		return LineItem{}, err
	}
	return item, nil
}

// reject tells the user which field blocks the submission.
func (s *Submitter) reject(ve *ValidationError) {
	doc, sel := s.cfg.Doc, s.cfg.Product.Selectors
	s.cfg.Notifier.Notice(ve.Message, NoticeDuration)

	btn := doc.QuerySelector(sel.AddToBag)
	if btn == nil {
		btn = doc.QuerySelector(sel.AddMore)
	}
	if btn != nil {
		s.cfg.Notifier.Shake(btn, NoticeDuration)
	}
	if o, ok := s.cfg.Product.Option(ve.Option); ok {
		if field := doc.QuerySelector(o.Locator); field != nil {
			field.ScrollIntoView()
			field.Focus()
		}
	}
	s.log.Info("cart: submission blocked", "product", s.cfg.Product.ID, "option", ve.Option)
}

// Submit prepares the line item on the loop, sends it to the cart service
// off the loop and calls done back on the loop with the submitted item or
// the failure. The service is never called for an invalid item.
func (s *Submitter) Submit(ctx context.Context, ev *dom.Event, done func(LineItem, error)) {
	item, err := s.Prepare(ev)
	if err != nil {
		done(LineItem{}, err)
		return
	}
	s.cfg.Go(func() {
		ok, err := s.cfg.Service.AddLineItem(ctx, item)
		if !ok && err == nil {
			err = ErrAddFailed
		}
		if ok {
			err = nil
		}
		s.cfg.Sched.Post(func() {
			if err != nil {
				s.log.Warn("cart: add failed", "product", item.ID, "error", err)
				done(LineItem{}, err)
				return
			}
			s.log.Info("cart: added", "product", item.ID, "quantity", item.Quantity)
			done(item, nil)
		})
	})
}
