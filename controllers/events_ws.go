package controller

import (
	"log"

	"github.com/gofiber/websocket/v2"

	"waflow/utils"
)

// HandleEventsWS streams an owner's live events over a websocket. The
// subscription is torn down when the client disconnects or the bus shuts
// down.
func HandleEventsWS(c *websocket.Conn, bus *utils.EventBus) {
	defer c.Close()

	userID, ok := c.Locals("userID").(uint)
	if !ok {
		log.Printf("Websocket connection without authenticated user")
		return
	}

	subID, events := bus.Subscribe(userID)
	defer bus.Unsubscribe(userID, subID)

	// Drain client frames so close handshakes are noticed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.Printf("Error writing event to websocket: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
