// Package broadcast fans an owner message out to subscribers with
// throttling, progress checkpoints and automatic unsubscription of
// recipients who blocked the bot.
package broadcast

import (
	"context"
	"time"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

const (
	// sendDelay throttles delivery below the platform's burst limits.
	sendDelay = 50 * time.Millisecond

	// progressInterval is the checkpoint cadence in recipients.
	progressInterval = 10
)

// Worker runs broadcast jobs. Run is synchronous; the dispatcher
// decides where it executes.
type Worker struct {
	db     *store.Store
	sender chat.Sender

	// sleep is swapped in tests to skip real throttling.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewWorker(db *store.Store, sender chat.Sender) *Worker {
	return &Worker{db: db, sender: sender, sleep: sleepCtx}
}

// sleepCtx waits d or until ctx is cancelled; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Create resolves the audience and inserts the queued job.
func (w *Worker) Create(text, audience string) (int64, []int64, error) {
	recipients, err := w.db.RecipientIDs(audience, time.Now())
	if err != nil {
		return 0, nil, err
	}
	id, err := w.db.CreateBroadcast(text, audience, len(recipients))
	if err != nil {
		return 0, nil, err
	}
	return id, recipients, nil
}

// Run delivers one broadcast to its recipients. Cancellation or a
// fatal error leaves the job failed with its checkpointed counters
// intact.
func (w *Worker) Run(ctx context.Context, broadcastID int64, text string, recipients []int64) {
	if err := w.db.SetBroadcastStatus(broadcastID, model.BroadcastSending); err != nil {
		log.Log.Errorf("[Broadcast] failed to start job %d: %v", broadcastID, err)
		return
	}
	log.Log.Infof("[Broadcast] job %d started, %d recipients", broadcastID, len(recipients))

	sent, failed := 0, 0
	finish := func(status model.BroadcastStatus) {
		if err := w.db.FinishBroadcast(broadcastID, status, sent, failed); err != nil {
			log.Log.Errorf("[Broadcast] failed to finish job %d: %v", broadcastID, err)
		}
		log.Log.Infof("[Broadcast] job %d %s: %d sent, %d failed", broadcastID, status, sent, failed)
	}

	for i, userID := range recipients {
		if ctx.Err() != nil {
			finish(model.BroadcastFailed)
			return
		}

		if w.deliver(ctx, userID, text) {
			sent++
		} else {
			failed++
		}

		if (i+1)%progressInterval == 0 {
			if err := w.db.UpdateBroadcastProgress(broadcastID, sent, failed); err != nil {
				log.Log.Errorf("[Broadcast] failed to checkpoint job %d: %v", broadcastID, err)
			}
		}

		if i < len(recipients)-1 {
			if !w.sleep(ctx, sendDelay) {
				finish(model.BroadcastFailed)
				return
			}
		}
	}

	finish(model.BroadcastCompleted)
}

// deliver sends to one recipient, handling the forbidden and
// rate-limited outcomes. Returns true on success.
func (w *Worker) deliver(ctx context.Context, userID int64, text string) bool {
	err := w.sender.Send(ctx, userID, chat.Text(text))
	if err == nil {
		return true
	}

	if wait, ok := chat.RetryAfter(err); ok {
		log.Log.Warnf("[Broadcast] rate limited on %d, retrying after %s", userID, wait)
		if !w.sleep(ctx, wait) {
			return false
		}
		err = w.sender.Send(ctx, userID, chat.Text(text))
		if err == nil {
			return true
		}
	}

	if chat.IsForbidden(err) {
		log.Log.Infof("[Broadcast] recipient %d blocked the bot, unsubscribing", userID)
		if err := w.db.SetSubscribed(userID, false); err != nil {
			log.Log.Errorf("[Broadcast] failed to unsubscribe %d: %v", userID, err)
		}
		return false
	}

	log.Log.Errorf("[Broadcast] failed to deliver to %d: %v", userID, err)
	return false
}
