package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Learning events arrive in bursts at the end of a run, then nothing
// for the rest of the interval. Keepalive comments stop intermediaries
// from cutting the stream during the quiet stretches.
const keepAliveInterval = 30 * time.Second

// Broker fans learning events out to connected SSE clients.
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan bool
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 1000),
		done:       make(chan bool),
	}
}

// Run starts the broker loop. Only this loop touches the client map.
func (b *Broker) Run() {
	log.Println("📡 Event stream broker started")
	for {
		select {
		case client := <-b.register:
			b.clients[client] = true
			log.Printf("📡 Stream client connected. Total: %d", len(b.clients))

		case client := <-b.unregister:
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("📡 Stream client disconnected. Total: %d", len(b.clients))
			}

		case msg := <-b.broadcast:
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Skip if client buffer is full to prevent blocking
				}
			}

		case <-b.done:
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			log.Println("📡 Event stream broker stopped")
			return
		}
	}
}

// Stop gracefully stops the broker and closes all client streams
func (b *Broker) Stop() {
	close(b.done)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 10)
	b.register <- clientChan

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	notify := r.Context().Done()

	for {
		select {
		case <-notify:
			b.unregister <- clientChan
			return

		case msg, open := <-clientChan:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// Broadcast sends a typed event envelope to all connected clients
func (b *Broker) Broadcast(event string, payload interface{}) {
	data := map[string]interface{}{
		"event":   event,
		"payload": payload,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		log.Printf("⚠️ Error marshalling broadcast message: %v", err)
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		// Drop if broadcast buffer full
	}
}
