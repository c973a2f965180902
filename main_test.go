package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/asteruwu/cartsync/pkg/mockbackend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// cliBackend fronts the mock backend so a test can make cart reads fail.
type cliBackend struct {
	failCartReads int32
}

func setupCLI(t *testing.T) *cliBackend {
	t.Helper()
	log.Out = io.Discard

	srv := mockbackend.New(mockbackend.Options{BcryptCost: bcrypt.MinCost, Log: log})
	_, err := srv.AddAccount(mockbackend.Account{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = srv.AddAccount(mockbackend.Account{Name: "Root", Email: "root@example.com", Password: "pw", Admin: true})
	require.NoError(t, err)

	b := &cliBackend{}
	h := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&b.failCartReads) == 1 && r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/carrito/") {
			http.Error(w, "cart store down", http.StatusInternalServerError)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	t.Setenv("BACKEND_URL", ts.URL)
	t.Setenv("CARTSYNC_CONFIG", "")
	t.Setenv("CARTSYNC_STORAGE", "sqlite")
	t.Setenv("CARTSYNC_SQLITE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("RECEIPTS_SQLITE_PATH", filepath.Join(dir, "receipts.db"))
	t.Setenv("ENABLE_METRICS", "")
	t.Setenv("ENABLE_TRACING", "")
	return b
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

var checkoutArgs = []string{
	"checkout",
	"--name", "Ana", "--surname", "Rojas", "--email", "ana@example.com",
	"--card", "4111111111111111", "--street", "Av. Siempre Viva 742",
	"--region", "Metropolitana", "--comuna", "Providencia",
}

func TestCLI_GuestCartSurvivesAndMergesAtLogin(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, "cart", "add", "1", "1", "3")
	assert.Contains(t, out, "Catan")
	assert.Contains(t, out, "(local)")

	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "3 item(s)")

	out = mustRun(t, "login", "--email", "ana@example.com", "--password", "pw")
	assert.Contains(t, out, "Logged in as ana@example.com (USER)")
	assert.Contains(t, out, "3 item(s)")
	assert.Contains(t, out, "(remote)")

	out = mustRun(t, "whoami")
	assert.Contains(t, out, "user 1")

	out = mustRun(t, "logout")
	assert.Contains(t, out, "Logged out")
	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "The cart is empty (local)")
}

func TestCLI_CheckoutJournalsReceipt(t *testing.T) {
	setupCLI(t)
	mustRun(t, "login", "--email", "ana@example.com", "--password", "pw")
	mustRun(t, "cart", "add", "3")
	mustRun(t, "cart", "set", "3", "3")

	out := mustRun(t, append(checkoutArgs, "--success-rate", "1")...)
	assert.Contains(t, out, "Order 1 confirmed for ana@example.com")
	assert.Contains(t, out, "Total 24000")

	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "The cart is empty (remote)")

	out = mustRun(t, "receipts")
	assert.Contains(t, out, "ana@example.com")
	out = mustRun(t, "orders")
	assert.Contains(t, out, "PENDIENTE")
}

func TestCLI_DeclinedPaymentKeepsCart(t *testing.T) {
	setupCLI(t)
	mustRun(t, "cart", "add", "2")

	out, err := runCLI(t, append(checkoutArgs, "--success-rate", "0")...)
	assert.Error(t, err)
	assert.Contains(t, out, "The payment could not be processed")

	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "Carcassonne")
}

func TestCLI_Validation(t *testing.T) {
	setupCLI(t)
	mustRun(t, "cart", "add", "2")

	_, err := runCLI(t, "checkout", "--name", "Ana")
	assert.ErrorContains(t, err, "complete the form")

	_, err = runCLI(t, "cart", "set", "2", "100")
	assert.Error(t, err)
	_, err = runCLI(t, "cart", "add", "x")
	assert.ErrorContains(t, err, "not a valid id")
}

func TestCLI_ClearNeedsConfirmation(t *testing.T) {
	setupCLI(t)
	mustRun(t, "cart", "add", "2")

	out := mustRun(t, "--yes", "cart", "clear")
	assert.Contains(t, out, "The cart is empty")

	out = mustRun(t, "cart", "clear")
	assert.Contains(t, out, "Nothing was removed")
}

func TestCLI_LoginWithoutCartStaysGuest(t *testing.T) {
	b := setupCLI(t)
	mustRun(t, "cart", "add", "1")

	atomic.StoreInt32(&b.failCartReads, 1)
	_, err := runCLI(t, "login", "--email", "ana@example.com", "--password", "pw")
	assert.ErrorContains(t, err, "still browsing as a guest")

	out := mustRun(t, "whoami")
	assert.Contains(t, out, "Not logged in")
	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "Catan")
	assert.Contains(t, out, "(local)")

	atomic.StoreInt32(&b.failCartReads, 0)
	out = mustRun(t, "login", "--email", "ana@example.com", "--password", "pw")
	assert.Contains(t, out, "1 item(s)")
	assert.Contains(t, out, "(remote)")

	mustRun(t, "logout")
	out = mustRun(t, "cart", "show")
	assert.Contains(t, out, "The cart is empty (local)", "the guest cart was merged, not left behind")
}

func TestCLI_AdminCatalog(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, "categories")
	assert.Contains(t, out, "Juegos de mesa")

	mustRun(t, "login", "--email", "ana@example.com", "--password", "pw")
	_, err := runCLI(t, "categories", "create", "--name", "Puzzles")
	assert.ErrorContains(t, err, "admin role required")
	mustRun(t, "logout")

	mustRun(t, "login", "--email", "root@example.com", "--password", "pw")
	out = mustRun(t, "categories", "create", "--name", "Puzzles")
	assert.Contains(t, out, "Category 3 created")

	out = mustRun(t, "products", "create", "--name", "Azul", "--price", "30000", "--category", "3", "--offer", "--discount", "10")
	assert.Contains(t, out, "Product 6 created")
	assert.Contains(t, out, "Puzzles")

	_, err = runCLI(t, "products", "create", "--name", "Gratis", "--price", "0")
	assert.ErrorContains(t, err, "price must be positive")

	assert.Contains(t, mustRun(t, "products", "featured"), "Azul")
	assert.Contains(t, mustRun(t, "products", "search", "azul"), "Azul")
	assert.Contains(t, mustRun(t, "products", "category", "3"), "Azul")

	_, err = runCLI(t, "--yes", "categories", "delete", "3")
	assert.ErrorContains(t, err, "category still has products")

	out = mustRun(t, "products", "update", "6", "--name", "Azul Mini", "--price", "19990")
	assert.Contains(t, out, "Azul Mini")
	assert.Contains(t, mustRun(t, "--yes", "products", "delete", "6"), "Product 6 deleted")
	assert.Contains(t, mustRun(t, "--yes", "categories", "delete", "3"), "Category 3 deleted")
	assert.NotContains(t, mustRun(t, "categories"), "Puzzles")
}
