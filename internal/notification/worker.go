package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"parking-access-backend/internal/metrics"
	"parking-access-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the storage the workers read subscribers from.
type Subscriptions interface {
	SubscriptionsForVehicle(ctx context.Context, vehicleID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
}

// WorkerPool sends a push notification to every subscriber of a vehicle
// when one of its access events is committed.
type WorkerPool struct {
	size    int
	jobs    chan model.AccessEvent
	store   Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, store Subscriptions, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.AccessEvent, queueSize),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.With(zap.String("component", "notification")),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case event := <-wp.jobs:
			wp.notifyVehicle(ctx, event)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues event without blocking. When the queue is full the
// notification is dropped.
func (wp *WorkerPool) Dispatch(event model.AccessEvent) {
	select {
	case wp.jobs <- event:
	default:
		metrics.PushSentTotal.WithLabelValues("dropped").Inc()
		wp.log.Warn("notification queue full, dropping event",
			zap.Int64("event_id", event.ID), zap.Int64("vehicle_id", event.VehicleID))
	}
}

func (wp *WorkerPool) notifyVehicle(ctx context.Context, event model.AccessEvent) {
	subscriptions, err := wp.store.SubscriptionsForVehicle(ctx, event.VehicleID)
	if err != nil {
		wp.log.Error("error fetching subscriptions", zap.Int64("vehicle_id", event.VehicleID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := strconv.FormatInt(event.VehicleID, 10)
	if vehicle, err := wp.store.GetVehicle(ctx, event.VehicleID); err != nil {
		wp.log.Warn("error fetching vehicle", zap.Int64("vehicle_id", event.VehicleID), zap.Error(err))
	} else if vehicle != nil && vehicle.Plate != "" {
		label = vehicle.Plate
	}

	payload := []byte(Message(label, event))
	wp.log.Debug("sending notifications", zap.Int("count", len(subscriptions)), zap.Int64("vehicle_id", event.VehicleID))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// Message renders the notification text for event.
func Message(label string, event model.AccessEvent) string {
	msg := fmt.Sprintf("Vehículo %s: %s registrada", label, event.Movement)
	if event.Movement == model.MovementExit && event.StayDuration != nil {
		msg += fmt.Sprintf(" (%d s)", *event.StayDuration)
	}
	return msg
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.PushSentTotal.WithLabelValues("error").Inc()
		wp.log.Warn("error sending notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		metrics.PushSentTotal.WithLabelValues("expired").Inc()
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return
	}
	metrics.PushSentTotal.WithLabelValues("sent").Inc()
}
