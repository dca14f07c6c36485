package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

type frame struct {
	Event        ws.Event            `json:"event"`
	Session      model.SessionDetail `json:"session"`
	Notification model.Notification  `json:"notification"`
	Status       model.SessionStatus `json:"status"`
	Score        int                 `json:"score"`
	Error        string              `json:"error"`
}

func dial(t *testing.T, e *env, sessionID uuid.UUID, studentID uuid.UUID) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	tok, err := e.auth.GenerateToken(model.RoleStudent, studentID)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/session/" + sessionID.String() + "/stream?token=" + tok
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil returns the first frame carrying event, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, event ws.Event) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func TestSessionStream(t *testing.T) {
	e := newEnv(t)
	session := e.start(t)

	conn, _, err := dial(t, e, session.ID, e.student)
	require.NoError(t, err)
	defer conn.Close()

	first := readUntil(t, conn, ws.EventSession)
	assert.Equal(t, session.ID, first.Session.ID)
	assert.Equal(t, 3, first.Session.MaxWarnings)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	readUntil(t, conn, ws.EventPong)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "signal", "kind": "visibility_hidden"}))
	note := readUntil(t, conn, ws.EventNotification)
	assert.Equal(t, model.NotificationWarning, note.Notification.Kind)
	assert.Equal(t, 1, note.Notification.WarningCount)
	assert.Equal(t, 2, note.Notification.Remaining)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "answer", "questionId": e.questions[1].ID, "answer": "Stack",
	}))
	readUntil(t, conn, ws.EventAnswerSaved)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "submit"}))
	done := readUntil(t, conn, ws.EventSubmitted)
	assert.Equal(t, model.SessionStatusFinished, done.Status)
	assert.Equal(t, 1, done.Score)
}

func TestSessionStreamRejectsOtherStudents(t *testing.T) {
	e := newEnv(t)
	session := e.start(t)

	_, resp, err := dial(t, e, session.ID, uuid.New())
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionStreamUnknownSignal(t *testing.T) {
	e := newEnv(t)
	session := e.start(t)

	conn, _, err := dial(t, e, session.ID, e.student)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, ws.EventSession)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "signal", "kind": "devtools_open"}))
	f := readUntil(t, conn, ws.EventError)
	assert.Contains(t, f.Error, "unknown signal kind")
}
