package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type account struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

type chat struct {
	ID string `json:"id"`
}

type count struct {
	Count int `json:"count"`
}

type frame struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	Count  int    `json:"count"`
}

type testChatSuite struct {
	BaseHTTPSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) register(name string) account {
	// Unique per run so the suite can target a long lived server
	suffix := uuid.NewString()[:8]
	var res account
	status := s.Do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    fmt.Sprintf("%s-%s@example.com", name, suffix),
		"username": fmt.Sprintf("%s_%s", name, suffix),
		"password": "Sup3r-Secret!pass",
	}, &res)
	s.Require().Equal(http.StatusCreated, status)
	return res
}

func (s *testChatSuite) TestConversationFlow() {
	alice := s.register("alice")
	bob := s.register("bob")
	eve := s.register("eve")
	var single chat

	s.Run("Step 1: Open a single chat from both sides", func() {
		s.Step("Create SINGLE chat")
		s.Require().Equal(http.StatusCreated, s.Do(http.MethodPost, "/api/chats", alice.Token, map[string]any{
			"participant_ids": []string{alice.User.ID, bob.User.ID}, "type": "SINGLE",
		}, &single))

		var again chat
		s.Require().Equal(http.StatusCreated, s.Do(http.MethodPost, "/api/chats", bob.Token, map[string]any{
			"participant_ids": []string{bob.User.ID, alice.User.ID}, "type": "single",
		}, &again))
		s.Require().Equal(single.ID, again.ID, "the pair must map to one chat")
	})

	s.Run("Step 2: Deliver live events to participants only", func() {
		s.Step("Connect bob and eve, then send")
		bobConn := s.Dial(bob.Token)
		defer bobConn.Close()
		eveConn := s.Dial(eve.Token)
		defer eveConn.Close()
		time.Sleep(100 * time.Millisecond)

		s.Require().Equal(http.StatusCreated, s.Do(http.MethodPost, "/api/chats/"+single.ID+"/messages", alice.Token,
			map[string]string{"content": "hello bob"}, nil))

		_ = bobConn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var evt frame
		s.Require().NoError(bobConn.ReadJSON(&evt))
		s.Require().Equal("message_sent", evt.Type)
		s.Require().Equal(single.ID, evt.ChatID)

		_ = eveConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, _, err := eveConn.ReadMessage()
		s.Require().Error(err, "eve must not see a chat she is not part of")
	})

	s.Run("Step 3: Track reads per reader", func() {
		s.Step("Unread count then mark read")
		var unread count
		s.Require().Equal(http.StatusOK, s.Do(http.MethodGet, "/api/chats/"+single.ID+"/unread-count", bob.Token, nil, &unread))
		s.Require().Equal(1, unread.Count)

		var read count
		s.Require().Equal(http.StatusOK, s.Do(http.MethodPut, "/api/chats/"+single.ID+"/read", bob.Token, nil, &read))
		s.Require().Equal(1, read.Count)
		s.Require().Equal(http.StatusOK, s.Do(http.MethodPut, "/api/chats/"+single.ID+"/read", bob.Token, nil, &read))
		s.Require().Equal(0, read.Count)
	})

	s.Run("Step 4: Refuse outsiders", func() {
		s.Step("Eve tries to read and write")
		s.Require().Equal(http.StatusForbidden, s.Do(http.MethodGet, "/api/chats/"+single.ID+"/messages", eve.Token, nil, nil))
		s.Require().Equal(http.StatusForbidden, s.Do(http.MethodPost, "/api/chats/"+single.ID+"/messages", eve.Token,
			map[string]string{"content": "hi"}, nil))
	})
}
