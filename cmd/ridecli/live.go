package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	chatapp "github.com/logiride/client/internal/application/chat"
	"github.com/logiride/client/internal/application/notification"
	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/cache"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// connect opens the push channel of room for the signed-in account
func (a *app) connect(ctx context.Context, name string, room func(identity.ChannelIdentity) string) (*realtime.Channel, identity.ChannelIdentity, error) {
	id, err := a.auth.Identity(ctx)
	if err != nil {
		return nil, id, err
	}
	s, err := a.sessions.Get(ctx)
	if err != nil {
		return nil, id, err
	}
	ch, err := realtime.NewChannel(a.cfg.Realtime, id, room(id),
		realtime.WithToken(s.AccessToken),
		realtime.WithLogger(a.log),
		realtime.WithMetrics(a.metrics),
		realtime.WithName(name),
	)
	if err != nil {
		return nil, id, err
	}
	a.auth.Track(ch)
	ch.OnStateChange(func(st realtime.State) {
		a.log.Debug("Channel state", zap.String("channel", name), zap.Stringer("state", st))
		if st == realtime.StateReconnecting {
			fmt.Fprintln(os.Stderr, "(connection lost, reconnecting...)")
		}
	})
	if err := ch.Start(ctx); err != nil {
		return nil, id, err
	}
	return ch, id, nil
}

// lines streams stdin lines until EOF or ctx is done
func lines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func runChat(ctx context.Context, a *app, args []string) error {
	fs := flags("chat")
	bookingID := fs.String("booking", "", "Booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bookingID == "" {
		return errors.New("-booking is required")
	}

	ch, _, err := a.connect(ctx, "chat", func(id identity.ChannelIdentity) string { return id.ChatRoom(*bookingID) })
	if err != nil {
		return describe(err)
	}
	defer ch.Close()

	sent, err := cache.NewIdempotencyStoreFactory(a.cfg.Chat, a.cfg.Redis,
		cache.WithLogger(a.log),
		cache.WithInMemoryFallback(true),
	).CreateStore(ctx, "chat")
	if err != nil {
		return err
	}
	defer sent.Close()

	conv, err := chatapp.NewService(a.api, sent, a.cfg.Chat, a.log).Open(ctx, ch, *bookingID)
	if err != nil {
		return describe(err)
	}
	defer conv.Close()

	loc := a.cfg.History.Location()
	for _, m := range conv.Messages() {
		printMessage(m, loc)
	}
	conv.OnMessage(func(m chat.Message) {
		if !m.IsMine() {
			printMessage(m, loc)
		}
	})
	fmt.Fprintln(os.Stderr, "Type a message and press enter. Ctrl-D to leave.")

	in := lines(ctx, os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := conv.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "(not sent: %v)\n", err)
			}
		}
	}
}

func printMessage(m chat.Message, loc *time.Location) {
	who := "Them"
	if m.IsMine() {
		who = "Me"
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.In(loc).Format("15:04"), who, m.Text)
}

// bell rings the terminal bell for each offer
type bell struct{}

func (bell) Play(context.Context) error {
	_, err := os.Stderr.Write([]byte{'\a'})
	return err
}

// console prints offers to stdout
type console struct{}

func (console) Present(_ context.Context, n trip.Notification) {
	v := n.Display()
	fmt.Println()
	fmt.Printf("New trip %s\n", n.BookingID)
	fmt.Printf("  From:     %s\n", v.From)
	fmt.Printf("  To:       %s\n", v.To)
	fmt.Printf("  Vehicle:  %s\n", v.VehicleType)
	fmt.Printf("  Distance: %s\n", v.Distance)
	fmt.Printf("  Price:    %s\n", v.Price)
	fmt.Printf("  Points:   %s\n", v.Points)
	fmt.Println("Accept (a) or decline (d)?")
}

func (console) Dismiss(context.Context) {}

func runListen(ctx context.Context, a *app, args []string) error {
	fs := flags("listen")
	metricsAddr := fs.String("metrics", "", "Serve prometheus metrics on this address, e.g. :9102")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *metricsAddr != "" {
		ms := metrics.NewServer(a.metrics, a.cfg.Metrics.Path)
		if err := ms.Start(*metricsAddr); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = ms.Stop(stopCtx)
		}()
		fmt.Fprintf(os.Stderr, "Metrics on http://%s%s\n", ms.Addr(), a.cfg.Metrics.Path)
	}

	ch, _, err := a.connect(ctx, "notifications", identity.ChannelIdentity.NotificationRoom)
	if err != nil {
		return describe(err)
	}
	defer ch.Close()

	center := notification.NewCenter(ch, a.bookings, bell{}, console{}, a.log)
	defer center.Close()
	center.Ready(ctx)
	fmt.Fprintln(os.Stderr, "Waiting for trip offers. Ctrl-C to stop.")

	in := lines(ctx, os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok {
				<-ctx.Done()
				return nil
			}
			var (
				b   *trip.Booking
				err error
			)
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "a":
				b, err = center.Accept(ctx)
			case "d":
				b, err = center.Decline(ctx)
			default:
				continue
			}
			switch {
			case errors.Is(err, notification.ErrNoPendingNotification):
				fmt.Println("No pending offer")
			case err != nil:
				fmt.Fprintf(os.Stderr, "Answer failed: %v\n", err)
			default:
				fmt.Printf("Booking %s is now %s\n", b.ID, b.Status)
			}
		}
	}
}
