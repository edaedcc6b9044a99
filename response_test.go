package deskweb

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	custom := &Response{Status: http.StatusAccepted, Header: http.Header{}}

	testCases := []struct {
		name            string
		value           any
		wantStatus      int
		wantContentType string
		wantBody        string
		wantLocation    string
		wantSame        *Response
	}{
		{
			name:       "nil",
			value:      nil,
			wantStatus: http.StatusOK,
		},
		{
			name:            "字节",
			value:           []byte{1, 2, 3},
			wantStatus:      http.StatusOK,
			wantContentType: "application/octet-stream",
			wantBody:        "\x01\x02\x03",
		},
		{
			name:            "字符串",
			value:           "<p>hi</p>",
			wantStatus:      http.StatusOK,
			wantContentType: "text/html; charset=utf-8",
			wantBody:        "<p>hi</p>",
		},
		{
			name:         "重定向",
			value:        "redirect:/login",
			wantStatus:   http.StatusFound,
			wantLocation: "/login",
		},
		{
			name:            "JSON",
			value:           map[string]int{"height": 700},
			wantStatus:      http.StatusOK,
			wantContentType: "application/json",
			wantBody:        `{"height":700}`,
		},
		{
			name:       "Response 原样返回",
			value:      custom,
			wantStatus: http.StatusAccepted,
			wantSame:   custom,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := Render(tc.value)
			require.NoError(t, err)
			if tc.wantSame != nil {
				assert.Same(t, tc.wantSame, resp)
			}
			assert.Equal(t, tc.wantStatus, resp.Status)
			assert.Equal(t, tc.wantContentType, resp.Header.Get("Content-Type"))
			assert.Equal(t, tc.wantBody, string(resp.Body))
			assert.Equal(t, tc.wantLocation, resp.Header.Get("Location"))
		})
	}
}

func TestRender_Unencodable(t *testing.T) {
	_, err := Render(make(chan int))
	assert.Error(t, err)
}

func TestResponse_Write(t *testing.T) {
	resp := newBodyResponse(http.StatusCreated, "text/plain", []byte("made"))

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Write(rec, httptest.NewRequest(http.MethodPost, "/", nil)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "made", rec.Body.String())
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))

	rec = httptest.NewRecorder()
	require.NoError(t, resp.Write(rec, httptest.NewRequest(http.MethodHead, "/", nil)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResponse_WriteZeroStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, (&Response{}).Write(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIError(t *testing.T) {
	err := NewAPIError(http.StatusOK, "value:invalid", "height", "too low")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "value:invalid: too low", err.Error())
	assert.Equal(t, http.StatusInternalServerError, NewAPIError(700, "x", nil, "").Status)

	resp, rerr := ErrResourceNotFound("preset").Response()
	require.NoError(t, rerr)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.JSONEq(t, `{"error":"value:notfound","data":"preset","message":"preset not found"}`, string(resp.Body))
}
