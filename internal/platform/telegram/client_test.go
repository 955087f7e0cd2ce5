package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var got sendMessageReq
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c := NewClient("TOKEN")
	c.baseURL = srv.URL
	if err := c.SendMessage(context.Background(), 7, "hello"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" || got.ChatID != 7 || got.Text != "hello" {
		t.Errorf("path %q body %+v", path, got)
	}
}

func TestSendDocument(t *testing.T) {
	var chatID, name string
	var data []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		chatID = r.FormValue("chat_id")
		f, hdr, err := r.FormFile("document")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		name = hdr.Filename
		data, _ = io.ReadAll(f)
	}))
	defer srv.Close()

	c := NewClient("TOKEN")
	c.baseURL = srv.URL
	if err := c.SendDocument(context.Background(), -100, []byte("%PDF-1.4"), "a.pdf"); err != nil {
		t.Fatal(err)
	}
	if chatID != "-100" || name != "a.pdf" || string(data) != "%PDF-1.4" {
		t.Errorf("chat %q name %q data %q", chatID, name, data)
	}
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("TOKEN")
	c.baseURL = srv.URL
	if err := c.SendMessage(context.Background(), 1, "x"); err == nil {
		t.Error("expected error")
	}
}
