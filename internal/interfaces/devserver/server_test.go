package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/driver"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

type testEnv struct {
	server *Server
	http   *httptest.Server
	store  *persistence.Store
}

type rawResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T, tweaks ...func(*config.DevserverConfig)) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	db, err := persistence.Open(persistence.Options{Driver: persistence.DriverSQLite, DSN: "file::memory:", LogLevel: "silent", Logger: log})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	store := persistence.NewStore(db)
	require.NoError(t, Seed(context.Background(), store, SeedOptions{Count: 2, Seed: 7}, log))

	cfg := config.DevserverConfig{
		JWTSecret:       "test-secret",
		Issuer:          "logiride-devserver",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	srv := New(cfg, store, WithLogger(log), WithMetrics(metrics.New()))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
		_ = db.Close()
	})
	return &testEnv{server: srv, http: hs, store: store}
}

func (e *testEnv) call(t *testing.T, method, path, token string, body any) (int, rawResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) login(t *testing.T, phone, password string) identity.LoginResult {
	t.Helper()
	status, resp := e.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"phone": phone, "password": password})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var res identity.LoginResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	require.NotEmpty(t, res.AccessToken)
	return res
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

func (e *testEnv) join(t *testing.T, token, room string) *websocket.Conn {
	t.Helper()
	before := e.server.Hub().Clients()
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL()+"?room="+room, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.server.Hub().Clients() > before }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := realtime.ParseEnvelope(frame)
	require.NoError(t, err)
	return env
}

func decodeData[T any](t *testing.T, resp rawResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("login", func(t *testing.T) {
		res := env.login(t, DemoCustomerPhone, DemoPassword)
		assert.Equal(t, identity.RoleCustomer, res.Account.Role)
		assert.Equal(t, DemoCustomerPhone, res.Account.Phone)
		assert.NotEmpty(t, res.RefreshToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		status, resp := env.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"phone": DemoCustomerPhone, "password": "sai-mat-khau"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Phone number or password is incorrect", resp.Message)
	})

	t.Run("register validation", func(t *testing.T) {
		status, resp := env.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{"phone": "123", "password": "abc", "confirmPassword": "abc", "fullName": "Trần Thị Bình", "role": "CUSTOMER"})
		assert.Equal(t, http.StatusBadRequest, status)
		fields := decodeData[map[string]string](t, resp)
		assert.Contains(t, fields, "phone")
		assert.Contains(t, fields, "password")
	})

	t.Run("register then duplicate", func(t *testing.T) {
		body := map[string]string{"phone": "0911222333", "password": "matkhau123", "confirmPassword": "matkhau123", "fullName": "Trần Thị Bình", "role": "DRIVER"}
		status, resp := env.call(t, http.MethodPost, "/api/auth/register", "", body)
		require.Equal(t, http.StatusCreated, status, resp.Message)
		assert.Equal(t, 200, resp.Code)
		p := decodeData[identity.Profile](t, resp)
		assert.Equal(t, identity.RoleDriver, p.Role)

		status, _ = env.call(t, http.MethodPost, "/api/auth/register", "", body)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("protected routes need a token", func(t *testing.T) {
		status, resp := env.call(t, http.MethodGet, "/api/account/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Authentication required", resp.Message)

		status, _ = env.call(t, http.MethodGet, "/api/account/profile", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("profile and password", func(t *testing.T) {
		tok := env.login(t, DemoCustomerPhone, DemoPassword).AccessToken
		status, resp := env.call(t, http.MethodPut, "/api/account/profile", tok, map[string]string{"fullName": "Nguyễn Văn Cường", "phone": DemoCustomerPhone, "email": "cuong@example.vn"})
		require.Equal(t, http.StatusOK, status, resp.Message)
		assert.Equal(t, "Nguyễn Văn Cường", decodeData[identity.Profile](t, resp).FullName)

		status, _ = env.call(t, http.MethodPut, "/api/account/password", tok, map[string]string{"oldPassword": "khong-dung", "newPassword": "matkhau456", "confirmPassword": "matkhau456"})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)
	drv := env.login(t, DemoDriverPhone, DemoPassword)
	conn := env.join(t, drv.AccessToken, drv.Account.ID)

	status, resp := env.call(t, http.MethodPost, "/api/tripBookings", customer.AccessToken, map[string]any{
		"startAddress": "12 Lê Lợi, Quận 1",
		"endAddress":   "45 Nguyễn Huệ, Quận 1",
		"vehicleType":  "CAR_4",
		"distance":     4.2,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	booking := decodeData[trip.Booking](t, resp)
	assert.Equal(t, trip.BookingPending, booking.Status)
	assert.True(t, booking.Price.Equal(decimal.NewFromInt(75000)), booking.Price.String())

	offer := readEnvelope(t, conn)
	assert.Equal(t, realtime.EventNotification, offer.Type)
	var n trip.Notification
	require.NoError(t, realtime.DecodeContent(offer, &n))
	assert.Equal(t, booking.ID, n.BookingID)
	assert.Equal(t, customer.Account.ID, n.CustomerID)

	t.Run("drivers only", func(t *testing.T) {
		status, _ := env.call(t, http.MethodPost, "/api/tripBookings/accept", customer.AccessToken, map[string]any{"bookingId": booking.ID})
		assert.Equal(t, http.StatusForbidden, status)
	})

	status, resp = env.call(t, http.MethodPost, "/api/tripBookings/accept", drv.AccessToken, map[string]any{"bookingId": booking.ID, "customerId": n.CustomerID})
	require.Equal(t, http.StatusOK, status, resp.Message)
	accepted := decodeData[trip.Booking](t, resp)
	assert.Equal(t, trip.BookingAccepted, accepted.Status)
	assert.Equal(t, drv.Account.ID, accepted.DriverID)

	status, resp = env.call(t, http.MethodPost, "/api/tripBookings/decline", drv.AccessToken, map[string]any{"bookingId": booking.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Booking is no longer available", resp.Message)

	status, resp = env.call(t, http.MethodGet, "/api/tripBookings/"+booking.ID, drv.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, trip.BookingAccepted, decodeData[trip.Booking](t, resp).Status)

	status, resp = env.call(t, http.MethodPost, "/api/tripBookings/"+booking.ID+"/cancel", customer.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, trip.BookingCancelled, decodeData[trip.Booking](t, resp).Status)

	status, _ = env.call(t, http.MethodPost, "/api/tripBookings/"+booking.ID+"/cancel", customer.AccessToken, nil)
	assert.GreaterOrEqual(t, status, http.StatusBadRequest)
}

func TestBookingVisibility(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)

	status, resp := env.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{"phone": "0933444555", "password": "matkhau123", "confirmPassword": "matkhau123", "fullName": "Lê Văn Dũng", "role": "CUSTOMER"})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	stranger := env.login(t, "0933444555", "matkhau123")

	status, resp = env.call(t, http.MethodGet, "/api/tripBookings", customer.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	bookings := decodeData[[]trip.Booking](t, resp)
	require.NotEmpty(t, bookings)

	status, _ = env.call(t, http.MethodGet, "/api/tripBookings/"+bookings[0].ID, stranger.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = env.call(t, http.MethodGet, "/api/tripBookings", stranger.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]trip.Booking](t, resp))
}

func activeBooking(t *testing.T, env *testEnv, token string) trip.Booking {
	t.Helper()
	status, resp := env.call(t, http.MethodGet, "/api/tripBookings", token, nil)
	require.Equal(t, http.StatusOK, status)
	for _, b := range decodeData[[]trip.Booking](t, resp) {
		if b.Status == trip.BookingAccepted {
			return b
		}
	}
	t.Fatal("seed has no accepted booking")
	return trip.Booking{}
}

func TestChatRelay(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)
	drv := env.login(t, DemoDriverPhone, DemoPassword)
	booking := activeBooking(t, env, customer.AccessToken)

	customerConn := env.join(t, customer.AccessToken, booking.ID)
	driverConn := env.join(t, drv.AccessToken, booking.ID)

	out, err := realtime.NewEnvelope(realtime.EventMessageSend, booking.ID, customer.Account.ID, chat.Message{Text: "  Anh ơi, em đứng ở cổng chính  "})
	require.NoError(t, err)
	out.ClientKey = "key-1"
	frame, err := json.Marshal(out)
	require.NoError(t, err)
	require.NoError(t, customerConn.WriteMessage(websocket.TextMessage, frame))

	for _, conn := range []*websocket.Conn{driverConn, customerConn} {
		in := readEnvelope(t, conn)
		assert.Equal(t, realtime.EventMessageReceived, in.Type)
		assert.Equal(t, "key-1", in.ClientKey)
		assert.Equal(t, customer.Account.ID, in.Sender)
		var m chat.Message
		require.NoError(t, realtime.DecodeContent(in, &m))
		assert.Equal(t, "Anh ơi, em đứng ở cổng chính", m.Text)
		assert.Equal(t, customer.Account.ID, m.SenderID)
		assert.NotEmpty(t, m.ID)
	}

	status, resp := env.call(t, http.MethodGet, "/api/chat-message/"+booking.ID, drv.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	history := decodeData[[]chat.Message](t, resp)
	require.NotEmpty(t, history)
	assert.Equal(t, "Anh ơi, em đứng ở cổng chính", history[len(history)-1].Text)

	t.Run("location from drivers only", func(t *testing.T) {
		loc, err := realtime.NewEnvelope(realtime.EventLocation, booking.ID, "", trip.Location{Latitude: 10.7769, Longitude: 106.7009})
		require.NoError(t, err)
		frame, err := json.Marshal(loc)
		require.NoError(t, err)

		require.NoError(t, customerConn.WriteMessage(websocket.TextMessage, frame))
		require.NoError(t, driverConn.WriteMessage(websocket.TextMessage, frame))

		in := readEnvelope(t, customerConn)
		assert.Equal(t, realtime.EventLocation, in.Type)
		assert.Equal(t, drv.Account.ID, in.Sender)
	})
}

func TestHubAdmission(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)
	booking := activeBooking(t, env, customer.AccessToken)

	status, resp := env.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{"phone": "0944555666", "password": "matkhau123", "confirmPassword": "matkhau123", "fullName": "Phạm Thị Hoa", "role": "CUSTOMER"})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	stranger := env.login(t, "0944555666", "matkhau123")

	dial := func(token, room string) int {
		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL()+"?room="+room, header)
		if err == nil {
			conn.Close()
		}
		require.NotNil(t, resp)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, dial("", booking.ID))
	assert.Equal(t, http.StatusForbidden, dial(stranger.AccessToken, booking.ID))
	assert.Equal(t, http.StatusForbidden, dial(stranger.AccessToken, customer.Account.ID))
	assert.Equal(t, http.StatusBadRequest, dial(stranger.AccessToken, ""))
	assert.Equal(t, http.StatusSwitchingProtocols, dial(customer.AccessToken, booking.ID))
}

func TestBalanceHistory(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)
	drv := env.login(t, DemoDriverPhone, DemoPassword)

	status, resp := env.call(t, http.MethodGet, "/api/balanceHistory/"+customer.Account.ID, customer.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	txs := decodeData[[]ledger.Transaction](t, resp)
	require.NotEmpty(t, txs)
	for _, tx := range txs {
		assert.False(t, tx.TransactionDate.IsZero())
	}

	status, _ = env.call(t, http.MethodGet, "/api/balanceHistory/"+customer.Account.ID, drv.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestVouchers(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, DemoCustomerPhone, DemoPassword).AccessToken

	status, resp := env.call(t, http.MethodGet, "/api/voucher", tok, nil)
	require.Equal(t, http.StatusOK, status)
	codes := []string{}
	for _, v := range decodeData[[]trip.Voucher](t, resp) {
		codes = append(codes, v.Code)
	}
	assert.Contains(t, codes, "WELCOME10")
	assert.NotContains(t, codes, "TET2025")

	status, resp = env.call(t, http.MethodPost, "/api/voucher/apply", tok, map[string]any{"code": "welcome10", "price": "150000"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	applied := decodeData[applyVoucherResponse](t, resp)
	assert.True(t, applied.Discount.Equal(decimal.NewFromInt(15000)), applied.Discount.String())
	assert.True(t, applied.Total.Equal(decimal.NewFromInt(135000)), applied.Total.String())

	status, _ = env.call(t, http.MethodPost, "/api/voucher/apply", tok, map[string]any{"code": "TET2025", "price": "150000"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDriverRegistration(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, DemoCustomerPhone, DemoPassword)
	drv := env.login(t, DemoDriverPhone, DemoPassword)

	vehicle := map[string]any{"plateNumber": "51A-123.45", "brand": "Toyota", "model": "Vios", "color": "Trắng", "vehicleType": "CAR_4", "year": 2021}
	status, resp := env.call(t, http.MethodPost, "/api/registerDriver/vehicle", drv.AccessToken, vehicle)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, driver.StatusPending, decodeData[driver.Status](t, resp).Vehicle)

	status, resp = env.call(t, http.MethodGet, "/api/registerDriver/status", drv.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	st := decodeData[driver.Status](t, resp)
	assert.Equal(t, driver.StatusPending, st.Vehicle)
	assert.Equal(t, driver.StatusNotSubmitted, st.License)

	status, _ = env.call(t, http.MethodPost, "/api/registerDriver/vehicle", customer.AccessToken, vehicle)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestScanIDCard(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, DemoDriverPhone, DemoPassword).AccessToken

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "cccd.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/ocr/id-card", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	card := decodeData[driver.OCRResult](t, out)
	assert.Equal(t, "079203001234", card.Number)
}

func TestDevNotify(t *testing.T) {
	env := newTestEnv(t)
	drv := env.login(t, DemoDriverPhone, DemoPassword)
	conn := env.join(t, drv.AccessToken, drv.Account.ID)

	status, resp := env.call(t, http.MethodPost, "/api/dev/notify", "", map[string]any{
		"accountId": drv.Account.ID,
		"payload":   map[string]any{"bookingId": 42, "price": 90000},
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, 1, decodeData[map[string]int](t, resp)["delivered"])

	in := readEnvelope(t, conn)
	assert.Equal(t, realtime.EventNotification, in.Type)
	var n trip.Notification
	require.NoError(t, realtime.DecodeContent(in, &n))
	assert.Equal(t, "42", n.BookingID)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "75000", quote(trip.VehicleCar4, 4.2).String())
	assert.Equal(t, "12000", quote(trip.VehicleMotorbike, 0).String())
	assert.Equal(t, "100000", quote(trip.VehicleTruck, 2).String())
	assert.Equal(t, "35000", quote("UNKNOWN", 1).String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 200, resp.Code)

	res, err := env.http.Client().Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	open := originChecker(nil)
	assert.True(t, open(req("https://evil.example")))

	check := originChecker([]string{"http://localhost:5173/"})
	assert.True(t, check(req("")))
	assert.True(t, check(req("http://localhost:5173")))
	assert.False(t, check(req("https://evil.example")))
}
