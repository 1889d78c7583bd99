package devserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is one open message stream.
type Subscriber struct {
	ID         string
	CampaignID string
	Send       chan Event
}

// campaignEvent is used to broadcast an event to a campaign's streams.
type campaignEvent struct {
	CampaignID string
	Event      Event
}

// Hub fans campaign events out to the open streams of that campaign.
type Hub struct {
	// Subscribers indexed by subscriber ID
	subscribers map[string]*Subscriber

	// Campaigns maps campaign_id to the set of subscriber IDs
	campaigns map[string]map[string]bool

	broadcast chan *campaignEvent
	done      chan struct{}
	stopped   bool

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		campaigns:   make(map[string]map[string]bool),
		broadcast:   make(chan *campaignEvent, 256),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run is the hub's main loop. It returns when ctx ends, closing every
// subscriber's Send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for id, sub := range h.subscribers {
				close(sub.Send)
				delete(h.subscribers, id)
			}
			h.campaigns = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case msg := <-h.broadcast:
			var slow []*Subscriber
			h.mu.RLock()
			for id := range h.campaigns[msg.CampaignID] {
				sub, ok := h.subscribers[id]
				if !ok {
					continue
				}
				select {
				case sub.Send <- msg.Event:
				default:
					slow = append(slow, sub)
				}
			}
			h.mu.RUnlock()
			for _, sub := range slow {
				h.logger.Warn("stream buffer full, closing", zap.String("subscriber_id", sub.ID))
				h.remove(sub)
			}
		}
	}
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	if set := h.campaigns[sub.CampaignID]; set != nil {
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(h.campaigns, sub.CampaignID)
		}
	}
	close(sub.Send)
	h.logger.Debug("stream unregistered", zap.String("subscriber_id", sub.ID))
}

// Subscribe registers a stream for campaignID. It returns nil once the hub
// has stopped.
func (h *Hub) Subscribe(campaignID string) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Send:       make(chan Event, 64),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.subscribers[sub.ID] = sub
	if h.campaigns[campaignID] == nil {
		h.campaigns[campaignID] = make(map[string]bool)
	}
	h.campaigns[campaignID][sub.ID] = true
	h.logger.Debug("stream registered", zap.String("subscriber_id", sub.ID), zap.String("campaign_id", campaignID))
	return sub
}

// Unsubscribe removes a stream and closes its Send channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.remove(sub)
}

// Publish queues an event for every stream of campaignID.
func (h *Hub) Publish(campaignID string, event Event) {
	select {
	case h.broadcast <- &campaignEvent{CampaignID: campaignID, Event: event}:
	case <-h.done:
	}
}

// SubscriberCount returns the number of open streams for campaignID.
func (h *Hub) SubscriberCount(campaignID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.campaigns[campaignID])
}
