package macbid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"lotwatch/internal/components/telemetry"
	"math/rand/v2"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"github.com/shopspring/decimal"
)

const (
	report_firestore_open   = "firestore.open"
	report_firestore_poll   = "firestore.poll"
	report_firestore_decode = "firestore.decode"
)

const (
	DefaultFirestoreBaseURL    = "https://firestore.googleapis.com"
	DefaultFirestoreCollection = "lots"
	listenChannelPath          = "/google.firestore.v1.Firestore/Listen/channel"
	listenTargetID             = 2
)

var errChannelClosed = errors.New("webchannel closed by server")

type FirestoreOptions struct {
	Session    SessionOptions
	Project    string
	APIKey     string
	Collection string
}

// BidUpdate is the bid state of a lot pushed by the firestore listener.
type BidUpdate struct {
	LotID      string
	CurrentBid decimal.Decimal
	BidCount   int
	IsClosed   bool
	UpdatedAt  time.Time
}

// Firestore listens to lot documents over the webchannel transport the web
// sdk uses.
type Firestore struct {
	http       *resty.Client
	project    string
	apiKey     string
	collection string
	tel        telemetry.API
}

func NewFirestore(opts FirestoreOptions, tel telemetry.API) (*Firestore, error) {
	if opts.Project == "" {
		return nil, fmt.Errorf("firestore project is required")
	}
	tel = telemetry.NewScopedAPI("macbid", tel)
	if opts.Session.BaseURL == "" {
		opts.Session.BaseURL = DefaultFirestoreBaseURL
	}
	if opts.Collection == "" {
		opts.Collection = DefaultFirestoreCollection
	}
	// retries would replay the same RID
	opts.Session.Retries = -1
	// long polls stay open until the server has something to say
	opts.Session.Timeout = time.Minute * 2
	httpClient, err := NewSession(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	return &Firestore{
		http:       httpClient,
		project:    opts.Project,
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		tel:        tel,
	}, nil
}

func (f *Firestore) database() string {
	return fmt.Sprintf("projects/%s/databases/(default)", f.project)
}

func (f *Firestore) documentPath(lotID string) string {
	return fmt.Sprintf("%s/documents/%s/%s", f.database(), f.collection, lotID)
}

type channelSession struct {
	sid        string
	gsessionid string
	lastArray  int
}

func zx() string {
	value, err := random.String(12)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return value
}

func (f *Firestore) baseQuery() url.Values {
	query := url.Values{}
	query.Set("database", f.database())
	query.Set("VER", "8")
	query.Set("zx", zx())
	query.Set("t", "1")
	if f.apiKey != "" {
		query.Set("key", f.apiKey)
	}
	return query
}

func (f *Firestore) addTargetRequest(lotIDs []string) (string, error) {
	documents := make([]string, len(lotIDs))
	for i, id := range lotIDs {
		documents[i] = f.documentPath(id)
	}
	serialized, err := json.Marshal(map[string]any{
		"database": f.database(),
		"addTarget": map[string]any{
			"documents": map[string]any{"documents": documents},
			"targetId":  listenTargetID,
		},
	})
	return string(serialized), err
}

func (f *Firestore) open(ctx context.Context, lotIDs []string) (channelSession, error) {
	target, err := f.addTargetRequest(lotIDs)
	if err != nil {
		return channelSession{}, err
	}

	query := f.baseQuery()
	query.Set("RID", strconv.Itoa(10000+rand.IntN(90000)))
	query.Set("CVER", "22")
	query.Set("X-HTTP-Session-Id", "gsessionid")

	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetFormData(map[string]string{
			"count":          "1",
			"ofs":            "0",
			"req0___data__": target,
		}).
		Post(listenChannelPath)
	if err != nil {
		return channelSession{}, fmt.Errorf("open listen channel: %w", err)
	}
	err = checkResponse(res)
	if err != nil {
		return channelSession{}, fmt.Errorf("open listen channel: %w", err)
	}

	frames, err := ParseFrames(res.String())
	if err != nil {
		return channelSession{}, err
	}
	session := channelSession{gsessionid: res.Header().Get("X-HTTP-Session-Id")}
	for _, frame := range frames {
		entries, err := decodeEntries(frame)
		if err != nil {
			return channelSession{}, err
		}
		for _, e := range entries {
			session.lastArray = e.ArrayID
			verb, args, ok := controlMessage(e.Payload)
			if ok && verb == "c" && len(args) > 0 {
				err = json.Unmarshal(args[0], &session.sid)
				if err != nil {
					return channelSession{}, fmt.Errorf("open listen channel: decode session id %s: %w", string(args[0]), err)
				}
			}
		}
	}
	if session.sid == "" {
		return channelSession{}, fmt.Errorf("open listen channel: no session id in response")
	}
	return session, nil
}

// poll performs one long poll, delivering updates until the server ends the
// response.
func (f *Firestore) poll(ctx context.Context, session *channelSession, out chan<- BidUpdate) error {
	query := f.baseQuery()
	query.Set("RID", "rpc")
	query.Set("SID", session.sid)
	query.Set("AID", strconv.Itoa(session.lastArray))
	query.Set("CI", "0")
	query.Set("TYPE", "xmlhttp")
	if session.gsessionid != "" {
		query.Set("gsessionid", session.gsessionid)
	}

	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetDoNotParseResponse(true).
		Get(listenChannelPath)
	if err != nil {
		return err
	}
	body := res.RawBody()
	defer body.Close()
	if !res.IsSuccess() {
		contents, _ := io.ReadAll(io.LimitReader(body, 4096))
		return &StatusError{Status: res.StatusCode(), Method: "GET", URL: telemetry.RedactURL(res.Request.URL), Body: string(contents)}
	}

	reader := newFrameReader(body)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		entries, err := decodeEntries(frame)
		if err != nil {
			return err
		}
		for _, e := range entries {
			session.lastArray = e.ArrayID
			verb, _, isControl := controlMessage(e.Payload)
			if isControl {
				if verb == "close" || verb == "stop" {
					return errChannelClosed
				}
				continue
			}
			updates, err := f.decodeUpdates(e.Payload)
			if err != nil {
				f.tel.ReportWarning(report_firestore_decode, err, string(e.Payload))
				continue
			}
			for _, u := range updates {
				select {
				case out <- u:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

type listenResponse struct {
	DocumentChange *struct {
		Document struct {
			Name       string                     `json:"name"`
			Fields     map[string]json.RawMessage `json:"fields"`
			UpdateTime string                     `json:"updateTime"`
		} `json:"document"`
	} `json:"documentChange"`
}

func (f *Firestore) decodeUpdates(payload json.RawMessage) ([]BidUpdate, error) {
	var messages []listenResponse
	err := json.Unmarshal(payload, &messages)
	if err != nil {
		return nil, err
	}
	var out []BidUpdate
	for _, m := range messages {
		if m.DocumentChange == nil {
			continue
		}
		doc := m.DocumentChange.Document
		fields, err := DecodeFields(doc.Fields)
		if err != nil {
			return nil, err
		}
		update := BidUpdateFromFields(path.Base(doc.Name), fields)
		if update.UpdatedAt.IsZero() && doc.UpdateTime != "" {
			update.UpdatedAt, _ = time.Parse(time.RFC3339Nano, doc.UpdateTime)
		}
		out = append(out, update)
	}
	return out, nil
}

func firstField(fields map[string]any, names ...string) any {
	for _, n := range names {
		if v, ok := fields[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toDecimal(v any) decimal.Decimal {
	switch value := v.(type) {
	case int64:
		return decimal.NewFromInt(value)
	case float64:
		return decimal.NewFromFloat(value)
	case string:
		d, err := decimal.NewFromString(value)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// BidUpdateFromFields maps decoded document fields onto a BidUpdate, the
// document id is used when the fields carry no lot id.
func BidUpdateFromFields(docID string, fields map[string]any) BidUpdate {
	update := BidUpdate{LotID: docID}
	if id, ok := firstField(fields, "lot_id", "id").(string); ok && id != "" {
		update.LotID = id
	}
	update.CurrentBid = toDecimal(firstField(fields, "current_bid", "currentBid", "winning_bid_amount"))
	update.BidCount = int(toDecimal(firstField(fields, "bid_count", "total_bids", "bidCount")).IntPart())
	if closed, ok := firstField(fields, "is_closed", "closed").(bool); ok {
		update.IsClosed = closed
	}
	if ts, ok := firstField(fields, "updated_at", "last_bid_at", "updatedAt").(time.Time); ok {
		update.UpdatedAt = ts
	}
	return update
}

// Listen streams bid updates of the given lots until ctx is cancelled, the
// returned channel is closed afterwards. Dropped channels are reopened with
// exponential backoff.
func (f *Firestore) Listen(ctx context.Context, lotIDs []string) (<-chan BidUpdate, error) {
	if len(lotIDs) == 0 {
		return nil, fmt.Errorf("listen needs at least one lot")
	}
	session, err := f.open(ctx, lotIDs)
	if err != nil {
		f.tel.ReportBroken(report_firestore_open, err)
		return nil, err
	}

	out := make(chan BidUpdate, 64)
	go func() {
		defer close(out)

		backoff := time.Second
		for {
			err := f.poll(ctx, &session, out)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				backoff = time.Second
				continue
			}

			f.tel.ReportWarning(report_firestore_poll, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, time.Second*30)

			var status *StatusError
			if errors.Is(err, errChannelClosed) || errors.As(err, &status) {
				reopened, err := f.open(ctx, lotIDs)
				if err != nil {
					f.tel.ReportWarning(report_firestore_open, err)
					continue
				}
				session = reopened
			}
		}
	}()
	return out, nil
}
