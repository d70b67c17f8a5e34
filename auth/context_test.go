package auth

import (
	"context"
	"sync"
	"testing"
)

func TestTokenContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := TokenFromContext(ctx); ok {
		t.Error("TokenFromContext() on empty context reported a token")
	}
	if WithToken(ctx, "") != ctx {
		t.Error("WithToken with empty token should return ctx unchanged")
	}

	a := WithToken(ctx, "A")
	b := WithToken(a, "B")
	if got, _ := TokenFromContext(a); got != "A" {
		t.Errorf("parent token = %q, want A", got)
	}
	if got, _ := TokenFromContext(b); got != "B" {
		t.Errorf("child token = %q, want B", got)
	}
}

func TestWithoutToken(t *testing.T) {
	type otherKey struct{}
	ctx := context.WithValue(WithToken(context.Background(), "A"), otherKey{}, "kept")

	stripped := WithoutToken(ctx)
	if tok, ok := TokenFromContext(stripped); ok {
		t.Errorf("TokenFromContext() = %q, want none", tok)
	}
	if got := stripped.Value(otherKey{}); got != "kept" {
		t.Errorf("other value = %v, want kept", got)
	}
	if got, _ := TokenFromContext(ctx); got != "A" {
		t.Errorf("parent token = %q, want A", got)
	}
	if bg := context.Background(); WithoutToken(bg) != bg {
		t.Error("WithoutToken on a context without a token should return it unchanged")
	}
}

func TestTokenContext_Goroutines(t *testing.T) {
	var wg sync.WaitGroup
	for _, tok := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		ctx := WithToken(context.Background(), tok)
		go func(want string) {
			defer wg.Done()
			// Derived contexts and goroutines keep the binding.
			child, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan string)
			go func() {
				got, _ := TokenFromContext(child)
				done <- got
			}()
			if got := <-done; got != want {
				t.Errorf("token = %q, want %q", got, want)
			}
		}(tok)
	}
	wg.Wait()
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if got := IdentityFromContext(ctx); got != nil {
		t.Errorf("IdentityFromContext() on empty context = %v, want nil", got)
	}
	if got := ClientIDFromContext(ctx); got != "" {
		t.Errorf("ClientIDFromContext() = %q, want empty", got)
	}

	ctx = WithIdentity(ctx, &Identity{ClientID: "agent", Scopes: ParseScopes("a")})
	if got := IdentityFromContext(ctx); got == nil || !got.HasScope("a") {
		t.Fatalf("IdentityFromContext() = %+v", got)
	}
	if got := ClientIDFromContext(ctx); got != "agent" {
		t.Errorf("ClientIDFromContext() = %q, want agent", got)
	}
}
