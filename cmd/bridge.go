/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"github.com/whoisnian/glb/httpd"
	"github.com/whoisnian/glb/logger"

	serialport "github.com/allbin/go-serialport"
)

// clientQueue is how many received chunks may wait for a slow websocket client.
const clientQueue = 64

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge <port>",
	Short: "Expose a serial port over a websocket",
	Long: `Open a serial port and serve it on a websocket endpoint (/ws).

Every connected client receives the bytes read from the port as binary
messages, and every message a client sends is written to the port.
Several clients may be connected at once.

Example usage:
  serialport bridge /dev/ttyUSB0
  serialport bridge /dev/ttyUSB0 --listen 0.0.0.0:9000 --baud 115200`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("listen")
		if err := runBridge(args[0], addr); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().String("listen", "127.0.0.1:8080", "Address to serve the websocket on")
}

func runBridge(portPath, addr string) error {
	ctx, stop := interruptContext()
	defer stop()

	lost := make(chan error, 1)
	s, err := openSession(ctx, portPath, func(opts *serialport.Options) {
		opts.DisconnectCallback = func(err error) {
			select {
			case lost <- err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer closeSession(s)

	server := &http.Server{Addr: addr, Handler: bridgeMux(s)}
	serveErr := make(chan error, 1)
	go func() {
		LOG.Infof(ctx, "bridging %s on ws://%s/ws", portPath, addr)
		serveErr <- server.ListenAndServe()
	}()

	var result error
	select {
	case <-ctx.Done():
	case err := <-lost:
		result = fmt.Errorf("%s: %w", portPath, err)
	case err := <-serveErr:
		return err
	}

	LOG.Warn(ctx, "server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		LOG.Error(ctx, "shutdown failed", logger.Error(err))
	}
	return result
}

func bridgeMux(s *serialport.Session) *httpd.Mux {
	mux := httpd.NewMux()
	mux.HandleMiddleware(LOG.NewMiddleware())
	mux.Handle("/ws", http.MethodGet, bridgeHandler(s))
	return mux
}

// bridgeHandler connects one websocket client to s until either side goes away.
func bridgeHandler(s *serialport.Session) func(store *httpd.Store) {
	return func(store *httpd.Store) {
		ctx := store.R.Context()
		conn, err := websocket.Accept(store.W.Origin, store.R, nil)
		if err != nil {
			LOG.Error(ctx, "websocket.Accept failed", logger.Error(err))
			store.W.WriteHeader(http.StatusInternalServerError)
			return
		}
		defer conn.CloseNow()

		rx := make(chan []byte, clientQueue)
		closed := make(chan struct{})
		dataID := s.Subscribe(serialport.EventData, func(ev serialport.Event) {
			select {
			case rx <- ev.Data:
			default:
				LOG.Warnf(ctx, "websocket client too slow, dropped %d bytes", len(ev.Data))
			}
		})
		closeID := s.Subscribe(serialport.EventClose, func(serialport.Event) { close(closed) })
		defer s.Unsubscribe(dataID)
		defer s.Unsubscribe(closeID)
		LOG.Infof(ctx, "websocket client connected, %d attached to %s", s.SubscriberCount(serialport.EventData), s.Path())

		readErr := make(chan error, 1)
		go func() {
			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					readErr <- err
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
				_, err = s.WriteContext(writeCtx, data)
				cancel()
				if err != nil {
					LOG.Error(ctx, "serial write failed", logger.Error(err))
				}
			}
		}()

		for {
			select {
			case data := <-rx:
				if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
					LOG.Error(ctx, "websocket.Write failed", logger.Error(err))
					return
				}
			case err := <-readErr:
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					LOG.Debugf(ctx, "websocket.Read stopped: %v", err)
				}
				return
			case <-closed:
				conn.Close(websocket.StatusGoingAway, "serial port closed")
				return
			}
		}
	}
}
