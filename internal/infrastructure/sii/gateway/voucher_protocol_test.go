package gateway_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/gateway"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FlujoBoletas(t *testing.T) {
	var gotStatusPath, gotUploadCookie string
	var tokenBodyValid bool

	api := http.NewServeMux()
	api.HandleFunc("GET /recursos/v1/boleta.electronica.semilla", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, siiResponse("00", "<SEMILLA>045612</SEMILLA>"))
	})
	api.HandleFunc("POST /recursos/v1/boleta.electronica.token", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ok, err := signer.Verify(body, nil)
		tokenBodyValid = err == nil && ok
		_, _ = io.WriteString(w, siiResponse("00", "<TOKEN>BOLTOKEN</TOKEN>"))
	})
	api.HandleFunc("GET /recursos/v1/boleta.electronica.envio/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotStatusPath = r.PathValue("id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rut_emisor":"76086428-5","trackid":5551,"estado":"RCT",`+
			`"estadistica":[{"tipo":39,"informados":2,"aceptados":0,"rechazados":2,"reparos":0}]}`)
	})
	apiSrv := httptest.NewServer(api)
	defer apiSrv.Close()

	send := http.NewServeMux()
	send.HandleFunc("POST /recursos/v1/boleta.electronica.envio", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("TOKEN"); err == nil {
			gotUploadCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rut_emisor":"76086428-5","rut_envia":"12345678-5","trackid":5551,`+
			`"fecha_recepcion":"2026-03-15 11:00:00","estado":"REC","file":"set.xml"}`)
	})
	sendSrv := httptest.NewServer(send)
	defer sendSrv.Close()

	proto := gateway.NewVoucherProtocol(gateway.EnvCert).WithServers(apiSrv.URL, sendSrv.URL)
	c := gateway.NewClient(proto, envelope(t), 5*time.Second)
	ctx := context.Background()

	sub, err := c.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BOLTOKEN", sub.Token)
	assert.True(t, tokenBodyValid)

	res, err := c.Upload(ctx, sub, upload())
	require.NoError(t, err)
	assert.Equal(t, "5551", res.TrackID, "trackid numérico")
	assert.Equal(t, "REC", res.StatusCode)
	assert.Equal(t, "BOLTOKEN", gotUploadCookie)

	st, err := c.PollStatus(ctx, sub, senderRUT, res.TrackID)
	require.NoError(t, err)
	assert.Equal(t, "12345678-5-5551", gotStatusPath)
	assert.Equal(t, entity.ShipmentStatusRejected, st.Status)
	assert.Contains(t, st.Detail, "rechazados 2")
	assert.Equal(t, gateway.StateStatusRejected, sub.State)
}

func TestVoucherProtocol_Respuestas(t *testing.T) {
	p := gateway.NewVoucherProtocol(gateway.EnvCert)

	_, err := p.ParseUpload([]byte(`{"estado":"ERR","trackid":null}`))
	assert.ErrorIs(t, err, domain.ErrSending)

	_, err = p.ParseUpload([]byte(`<html>502</html>`))
	assert.ErrorIs(t, err, domain.ErrSending)

	res, err := p.ParseUpload([]byte(`{"trackid":"77","estado":"REC"}`))
	require.NoError(t, err)
	assert.Equal(t, "77", res.TrackID)

	_, err = p.ParseToken([]byte(siiResponse("10", "")))
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = p.ParseStatus([]byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	st, err := p.ParseStatus([]byte(`{"estado":"EPR"}`))
	require.NoError(t, err)
	assert.Equal(t, entity.ShipmentStatusAccepted, st.Status)
}
