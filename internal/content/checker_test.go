package content

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestFingerprint_Normalization(t *testing.T) {
	base := Fingerprint("Buy TON  today")

	same := []string{
		"Buy TON today",
		"  Buy TON today  ",
		"Buy\nTON\ttoday",
		"Buy \n TON \n today",
	}
	for _, s := range same {
		if Fingerprint(s) != base {
			t.Errorf("Fingerprint(%q) differs from normalized base", s)
		}
	}

	different := []string{
		"Buy TON today!",
		"buy TON today",
		"Buy TONtoday",
		"",
	}
	for _, s := range different {
		if Fingerprint(s) == base {
			t.Errorf("Fingerprint(%q) should differ from base", s)
		}
	}
}

func TestFetchFingerprint(t *testing.T) {
	const postText = "Sponsored: try the new wallet"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chan/1":
			fmt.Fprintf(w, `<html><body><div class="tgme_widget_message_text">%s</div></body></html>`, postText)
		case "/chan/2":
			// deleted message: page exists, no message block
			fmt.Fprint(w, `<html><body><div class="tgme_page"></div></body></html>`)
		case "/chan/3":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewChecker(2000, 0, zap.NewNop())

	t.Run("live post matches publish-time fingerprint", func(t *testing.T) {
		fp, exists, err := c.FetchFingerprint(context.Background(), srv.URL+"/chan/1")
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Fatal("post should exist")
		}
		if fp != Fingerprint(postText) {
			t.Errorf("fingerprint mismatch: %s", fp)
		}
	})

	t.Run("deleted post", func(t *testing.T) {
		_, exists, err := c.FetchFingerprint(context.Background(), srv.URL+"/chan/2")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("deleted post reported as existing")
		}
	})

	t.Run("404", func(t *testing.T) {
		_, exists, err := c.FetchFingerprint(context.Background(), srv.URL+"/chan/3")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("404 post reported as existing")
		}
	})
}
