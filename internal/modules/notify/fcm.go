// README: Push notifications over FCM: new rides to the drivers topic, status changes to riders.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

const sendTimeout = 5 * time.Second

type sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// TokenLookup resolves a rider's registered device token; "" means none.
type TokenLookup interface {
	DeviceToken(ctx context.Context, uid types.ID) (string, error)
}

// FCM delivers ride notifications in the background. Send failures are logged, never returned.
type FCM struct {
	client sender
	tokens TokenLookup
	topic  string
	log    *logrus.Logger
	wg     sync.WaitGroup
}

func NewFCM(client *messaging.Client, tokens TokenLookup, topic string, log *logrus.Logger) *FCM {
	if client == nil {
		return newFCM(nil, tokens, topic, log)
	}
	return newFCM(client, tokens, topic, log)
}

func newFCM(client sender, tokens TokenLookup, topic string, log *logrus.Logger) *FCM {
	if log == nil {
		log = logging.Discard()
	}
	if topic == "" {
		topic = "drivers"
	}
	return &FCM{client: client, tokens: tokens, topic: topic, log: log}
}

// Wait blocks until every queued notification has been attempted.
func (n *FCM) Wait() { n.wg.Wait() }

func (n *FCM) RideCreated(ctx context.Context, r ride.Ride) {
	msg := &messaging.Message{
		Topic: n.topic,
		Data: map[string]string{
			"type":        "new_ride",
			"ride_id":     string(r.ID),
			"category":    string(r.Category),
			"ride_number": r.RideNumber,
			"amount":      strconv.FormatInt(r.Amount, 10),
		},
		Notification: &messaging.Notification{
			Title: "New ride request",
			Body:  fmt.Sprintf("%s to %s, ₹%d", r.Source, r.Destination, r.Amount),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	n.dispatch(ctx, r, msg, nil)
}

func (n *FCM) StatusChanged(ctx context.Context, r ride.Ride) {
	body, ok := riderMessage(r.Status)
	if !ok {
		return
	}
	msg := &messaging.Message{
		Data: map[string]string{
			"type":        "ride_status",
			"ride_id":     string(r.ID),
			"category":    string(r.Category),
			"ride_number": r.RideNumber,
			"status":      string(r.Status),
		},
		Notification: &messaging.Notification{
			Title: "Ride " + r.RideNumber,
			Body:  body,
		},
	}
	uid := r.RiderUID
	n.dispatch(ctx, r, msg, func(ctx context.Context) (string, error) {
		return n.tokens.DeviceToken(ctx, uid)
	})
}

func riderMessage(s ride.Status) (string, bool) {
	switch s {
	case ride.StatusAccepted:
		return "Ride accepted by driver.", true
	case ride.StatusRejected:
		return "Ride rejected by driver.", true
	case ride.StatusNoDriver:
		return "No Driver Available, Retry", true
	case ride.StatusCancelledAfterPaid:
		return "Your driver cancelled the paid ride.", true
	default:
		return "", false
	}
}

func (n *FCM) dispatch(ctx context.Context, r ride.Ride, msg *messaging.Message, token func(context.Context) (string, error)) {
	if n.client == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		fields := logrus.Fields{"ride_id": r.ID, "category": r.Category}
		if token != nil {
			if n.tokens == nil {
				return
			}
			t, err := token(ctx)
			if err != nil {
				n.log.WithFields(fields).WithError(err).Warn("device token lookup failed")
				return
			}
			if t == "" {
				return
			}
			msg.Token = t
		}
		id, err := n.client.Send(ctx, msg)
		if err != nil {
			n.log.WithFields(fields).WithError(err).Warn("fcm send failed")
			return
		}
		n.log.WithFields(fields).WithField("message_id", id).Debug("fcm sent")
	}()
}
