/**
 * @description
 * This file implements the live account view: a local materialized view over
 * the account-change event stream. A single goroutine owns a per-owner map of
 * accounts keyed by id, applies ADD/UPDATE/DELETE events, and after each event
 * re-derives two read-only projections for that owner: the sorted account
 * list (reserved codes first, then custom codes, each ascending) and a
 * {current, total} counter pair, pushing them to registered subscribers.
 *
 * All state is confined to the actor goroutine; callers interact only through
 * channels, so no locks are needed.
 */

package app

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/storemax/ledger-service/internal/domain"
)

// AccountListUpdate is one projection emission: the sorted account list and
// the counter pair for a single owner.
type AccountListUpdate struct {
	Owner    string                `json:"owner"`
	Accounts []domain.BankAccount  `json:"accounts"`
	Counter  domain.AccountCounter `json:"counter"`
}

// ViewSubscription is one registered listener. Updates arrive on C; slow
// consumers have stale updates dropped rather than blocking the view.
type ViewSubscription struct {
	C     chan AccountListUpdate
	owner string
	view  *LiveAccountView
}

// Cancel unregisters the subscription and closes its channel.
func (sub *ViewSubscription) Cancel() {
	sub.view.unsubscribe(sub)
}

// LiveAccountView owns the reconciled account state for every owner seen on
// the event stream.
type LiveAccountView struct {
	pageLimit int

	events    chan domain.AccountChangeEvent
	subs      chan *ViewSubscription
	unsubs    chan *ViewSubscription
	snapshots chan snapshotRequest
	stop      chan struct{}
	stopped   chan struct{}
}

type snapshotRequest struct {
	owner string
	reply chan AccountListUpdate
}

// NewLiveAccountView creates the view and starts its actor goroutine.
// pageLimit bounds how many records each emitted list carries; zero means
// unbounded.
func NewLiveAccountView(pageLimit int) *LiveAccountView {
	v := &LiveAccountView{
		pageLimit: pageLimit,
		events:    make(chan domain.AccountChangeEvent, 256),
		subs:      make(chan *ViewSubscription),
		unsubs:    make(chan *ViewSubscription),
		snapshots: make(chan snapshotRequest),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go v.run()
	return v
}

// Apply feeds one change event into the view. Safe for concurrent use.
func (v *LiveAccountView) Apply(event domain.AccountChangeEvent) {
	select {
	case v.events <- event:
	case <-v.stop:
	}
}

// HandleMessage adapts the view to the RabbitMQ consumer contract. Malformed
// payloads are dropped rather than re-queued.
func (v *LiveAccountView) HandleMessage(body []byte) bool {
	var event domain.AccountChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=liveview msg=\"dropping malformed change event\" err=%v", err)
		return true
	}
	v.Apply(event)
	return true
}

// Subscribe registers a listener for one owner's projections. The returned
// subscription receives an update after every applied event for that owner.
func (v *LiveAccountView) Subscribe(owner string) *ViewSubscription {
	sub := &ViewSubscription{
		C:     make(chan AccountListUpdate, 16),
		owner: owner,
		view:  v,
	}
	select {
	case v.subs <- sub:
	case <-v.stop:
		close(sub.C)
	}
	return sub
}

func (v *LiveAccountView) unsubscribe(sub *ViewSubscription) {
	select {
	case v.unsubs <- sub:
	case <-v.stop:
	}
}

// Snapshot returns the current projection for one owner without subscribing.
func (v *LiveAccountView) Snapshot(ctx context.Context, owner string) (AccountListUpdate, error) {
	req := snapshotRequest{owner: owner, reply: make(chan AccountListUpdate, 1)}
	select {
	case v.snapshots <- req:
	case <-v.stop:
		return AccountListUpdate{}, context.Canceled
	case <-ctx.Done():
		return AccountListUpdate{}, ctx.Err()
	}
	select {
	case update := <-req.reply:
		return update, nil
	case <-ctx.Done():
		return AccountListUpdate{}, ctx.Err()
	}
}

// Close stops the actor goroutine and closes all subscriber channels.
func (v *LiveAccountView) Close() {
	close(v.stop)
	<-v.stopped
}

func (v *LiveAccountView) run() {
	defer close(v.stopped)

	state := make(map[string]map[uuid.UUID]domain.BankAccount)
	subscribers := make(map[*ViewSubscription]struct{})

	handleEvent := func(event domain.AccountChangeEvent) {
		accounts, ok := state[event.Owner]
		if !ok {
			accounts = make(map[uuid.UUID]domain.BankAccount)
			state[event.Owner] = accounts
		}
		switch event.Kind {
		case domain.ChangeAdd, domain.ChangeUpdate:
			accounts[event.Account.ID] = event.Account
		case domain.ChangeDelete:
			delete(accounts, event.Account.ID)
		default:
			log.Printf("level=warn component=liveview msg=\"unknown change kind\" kind=%s", event.Kind)
			return
		}

		update := v.project(event.Owner, accounts)
		for sub := range subscribers {
			if sub.owner != event.Owner {
				continue
			}
			select {
			case sub.C <- update:
			default:
				// Drop for slow consumers; the next update supersedes.
			}
		}
	}

	for {
		// Apply queued events before serving reads, so a snapshot observes
		// every change enqueued before the request.
		select {
		case event := <-v.events:
			handleEvent(event)
			continue
		default:
		}

		select {
		case event := <-v.events:
			handleEvent(event)

		case sub := <-v.subs:
			subscribers[sub] = struct{}{}
			update := v.project(sub.owner, state[sub.owner])
			select {
			case sub.C <- update:
			default:
			}

		case sub := <-v.unsubs:
			if _, ok := subscribers[sub]; ok {
				delete(subscribers, sub)
				close(sub.C)
			}

		case req := <-v.snapshots:
			// Events enqueued before the request must be visible in the reply.
		drain:
			for {
				select {
				case event := <-v.events:
					handleEvent(event)
				default:
					break drain
				}
			}
			req.reply <- v.project(req.owner, state[req.owner])

		case <-v.stop:
			for sub := range subscribers {
				close(sub.C)
			}
			return
		}
	}
}

// project derives the sorted list and counter pair for one owner.
func (v *LiveAccountView) project(owner string, accounts map[uuid.UUID]domain.BankAccount) AccountListUpdate {
	list := make([]domain.BankAccount, 0, len(accounts))
	for _, account := range accounts {
		list = append(list, account)
	}
	domain.SortAccounts(list)

	total := len(list)
	if v.pageLimit > 0 && len(list) > v.pageLimit {
		list = list[:v.pageLimit]
	}
	return AccountListUpdate{
		Owner:    owner,
		Accounts: list,
		Counter:  domain.AccountCounter{Current: len(list), Total: total},
	}
}
