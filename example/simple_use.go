package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/leandrodaf/midijack/internal/config"
	"github.com/leandrodaf/midijack/internal/framer"
	"github.com/leandrodaf/midijack/internal/logger"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/leandrodaf/midijack/sdk/midijack"
	"gitlab.com/gomidi/midi/v2"
)

func main() {
	log := logger.NewZapLogger()

	settings, err := config.Load("")
	if err != nil {
		log.Error("Failed to load settings", log.Field().Error("error", err))
		return
	}

	bridge, err := midijack.New(append(settings.Options(), contracts.WithLogger(log))...)
	if err != nil {
		log.Error("Failed to initialize MIDI bridge", log.Field().Error("error", err))
		return
	}
	defer bridge.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := bridge.Start(ctx); err != nil {
		log.Warn("Initial device enumeration failed", log.Field().Error("error", err))
	}

	fmt.Println("Polling MIDI input, echoing notes to every destination... Press Ctrl+C to exit.")
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			m, ok := bridge.DequeueMessage()
			if !ok {
				break
			}
			short := m.ShortMessage()
			msg := midi.Message(short[:1+framer.DataLength(m.Status)])
			log.Info("MIDI Event",
				log.Field().String("source", bridge.SourceName(int32(m.Source))),
				log.Field().String("message", msg.String()))

			var channel, key, velocity uint8
			if msg.GetNoteOn(&channel, &key, &velocity) {
				echo(bridge, midi.NoteOn(channel, key, velocity))
			} else if msg.GetNoteOff(&channel, &key, &velocity) {
				echo(bridge, midi.NoteOffVelocity(channel, key, velocity))
			}
		}
	}
}

// echo sends msg to every destination.
func echo(bridge *midijack.Bridge, msg midi.Message) {
	out := contracts.Message{Status: msg[0]}
	copy(out.Data[:], msg[1:])
	for _, dst := range bridge.Destinations() {
		out.Source = dst.ID
		_ = bridge.Send(out)
	}
}
