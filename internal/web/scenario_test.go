// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package web_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/auth/memory"
	"github.com/listkeep/listkeep/internal/items"
	"github.com/listkeep/listkeep/internal/web"
)

type browser struct {
	base   string
	client *http.Client
}

func newBrowser(base string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// submit posts form and returns the redirect target.
func (b *browser) submit(path string, form url.Values) string {
	resp, err := b.client.PostForm(b.base+path, form)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
	return resp.Header.Get("Location")
}

// visit returns the status, redirect target and body of a GET.
func (b *browser) visit(path string) (int, string, string) {
	resp, err := b.client.Get(b.base + path)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

var _ = Describe("listkeep over HTTP", func() {
	var (
		ts    *httptest.Server
		users *memory.UserRepository
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		users = memory.NewUserRepository()
		sessions := memory.NewSessionRepository()
		users.CascadeSessions(sessions)

		manager, err := auth.NewSessionManager(sessions, auth.WithSessionLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		authSvc, err := auth.NewAuthServiceWithLogger(users, manager, auth.NewArgon2idHasher(), logger)
		Expect(err).NotTo(HaveOccurred())
		gate, err := auth.NewGate(manager, users, logger)
		Expect(err).NotTo(HaveOccurred())
		itemSvc, err := items.NewService(users, logger)
		Expect(err).NotTo(HaveOccurred())
		renderer, err := web.NewTemplateRenderer()
		Expect(err).NotTo(HaveOccurred())

		srv, err := web.NewServer(web.Options{}, web.Deps{
			Auth: authSvc, Gate: gate, Items: itemSvc, Renderer: renderer, Logger: logger,
		})
		Expect(err).NotTo(HaveOccurred())

		ts = httptest.NewServer(srv.Handler())
		DeferCleanup(ts.Close)
	})

	It("walks a user through register, login, add and delete", func() {
		signup := newBrowser(ts.URL)
		Expect(signup.submit("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})).To(Equal("/list"))

		alice := newBrowser(ts.URL)
		Expect(alice.submit("/login", url.Values{"username": {"alice"}, "password": {"pw1"}})).To(Equal("/list"))
		Expect(alice.submit("/add", url.Values{"task": {"task1"}})).To(Equal("/list"))

		status, _, body := alice.visit("/list")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("task1"))

		record, err := users.GetByUsername(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Items).To(HaveLen(1))

		Expect(alice.submit("/delete", url.Values{"itemId": {record.Items[0].ID.String()}})).To(Equal("/list"))

		_, _, body = alice.visit("/list")
		Expect(body).NotTo(ContainSubstring("task1"))
	})

	It("keeps each user's items private", func() {
		alice := newBrowser(ts.URL)
		bob := newBrowser(ts.URL)
		alice.submit("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
		bob.submit("/register", url.Values{"username": {"bob"}, "password": {"pw2"}})

		alice.submit("/add", url.Values{"task": {"alice secret"}})
		bob.submit("/add", url.Values{"task": {"bob secret"}})

		_, _, aliceBody := alice.visit("/list")
		_, _, bobBody := bob.visit("/list")
		Expect(aliceBody).To(ContainSubstring("alice secret"))
		Expect(aliceBody).NotTo(ContainSubstring("bob secret"))
		Expect(bobBody).To(ContainSubstring("bob secret"))
		Expect(bobBody).NotTo(ContainSubstring("alice secret"))
	})

	It("sends anonymous visitors to the entry page without item data", func() {
		owner := newBrowser(ts.URL)
		owner.submit("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
		owner.submit("/add", url.Values{"task": {"private"}})

		status, location, body := newBrowser(ts.URL).visit("/list")
		Expect(status).To(Equal(http.StatusSeeOther))
		Expect(location).To(Equal("/"))
		Expect(body).NotTo(ContainSubstring("private"))
	})

	It("returns a rejected login to the login form", func() {
		newBrowser(ts.URL).submit("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
		Expect(newBrowser(ts.URL).submit("/login", url.Values{"username": {"alice"}, "password": {"wrong"}})).To(Equal("/login"))
	})

	It("returns a duplicate registration to the entry page", func() {
		newBrowser(ts.URL).submit("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
		Expect(newBrowser(ts.URL).submit("/register", url.Values{"username": {"alice"}, "password": {"pw2"}})).To(Equal("/"))
	})
})
