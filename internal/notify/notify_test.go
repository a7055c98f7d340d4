package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"lotwatch/internal/monitor"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var outbid = monitor.Event{
	Kind:       monitor.EventOutbid,
	LotID:      "77",
	Title:      "Milwaukee drill kit",
	Location:   "Rock Hill",
	CurrentBid: decimal.NewFromInt(85),
	BidCount:   9,
	MaxBid:     decimal.NewFromInt(80),
	ClosesAt:   time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
	Source:     monitor.SourceCustomer,
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	console := Console{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, console.Notify(context.Background(), outbid))
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "lot=77")
	require.Contains(t, buf.String(), "you were outbid")
}

func TestMultiAndFilter(t *testing.T) {
	var got []monitor.EventKind
	record := monitor.SinkFunc(func(ctx context.Context, event monitor.Event) error {
		got = append(got, event.Kind)
		return nil
	})
	failing := monitor.SinkFunc(func(ctx context.Context, event monitor.Event) error {
		return errors.New("down")
	})

	sink := Multi{failing, Filter{Kinds: DefaultEmailKinds, Sink: record}}
	err := sink.Notify(context.Background(), monitor.Event{Kind: monitor.EventBid})
	require.Error(t, err)
	err = sink.Notify(context.Background(), outbid)
	require.Error(t, err)
	require.Equal(t, []monitor.EventKind{monitor.EventOutbid}, got)
}

func TestEmailMessage(t *testing.T) {
	mail := NewEmail(SmtpConfig{EmailAddress: "alerts@example.com", To: []string{"me@example.com"}}).message(outbid)
	require.Equal(t, "lotwatch <alerts@example.com>", mail.From)
	require.Equal(t, []string{"me@example.com"}, mail.To)
	require.True(t, strings.HasPrefix(mail.Subject, "[lotwatch] Milwaukee drill kit"))
	body := string(mail.Text)
	require.Contains(t, body, "Your max: $80.00")
	require.Contains(t, body, "Current bid: $85.00 (9 bids)")
	require.Contains(t, body, "https://www.mac.bid/lot/77")
}

func TestEmailNotifyHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	sink := NewEmail(SmtpConfig{Server: "smtp.example.com", Port: 25, To: []string{"me@example.com"}})
	sink.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		calls.Add(1)
		<-release
		return nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Notify(cancelled, outbid)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(0), calls.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = sink.Notify(ctx, outbid)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, int32(1), calls.Load())
}

func TestEmailNotifyRetriesWithoutAuth(t *testing.T) {
	var auths []smtp.Auth
	sink := NewEmail(SmtpConfig{Server: "localhost", Port: 1025, EmailAddress: "alerts@example.com", To: []string{"me@example.com"}})
	sink.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		require.Equal(t, "localhost:1025", addr)
		auths = append(auths, auth)
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}

	require.NoError(t, sink.Notify(context.Background(), outbid))
	require.Len(t, auths, 2)
	require.NotNil(t, auths[0])
	require.Nil(t, auths[1])
}

func TestEmailSend(t *testing.T) {
	if os.Getenv("LOTWATCH_DOCKER_TESTS") == "" {
		t.Skip("set LOTWATCH_DOCKER_TESTS to run tests that need docker")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtpServer, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025/tcp", "1080/tcp"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		err := smtpServer.Terminate(ctx)
		if err != nil {
			t.Fatal(err)
		}
	}()

	host, err := smtpServer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	smtpPort, err := smtpServer.MappedPort(ctx, "1025/tcp")
	if err != nil {
		t.Fatal(err)
	}
	webPort, err := smtpServer.MappedPort(ctx, "1080/tcp")
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(smtpPort.Port())
	if err != nil {
		t.Fatal(err)
	}

	sink := NewEmail(SmtpConfig{
		Server:       host,
		Port:         port,
		EmailAddress: "alerts@example.com",
		Password:     "default",
		To:           []string{"me@example.com"},
	})
	require.NoError(t, sink.Notify(ctx, outbid))

	res, err := resty.New().R().
		Get("http://" + host + ":" + webPort.Port() + "/messages/1.plain")
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, res.String(), "you were outbid")
}
