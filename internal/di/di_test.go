package di

import "testing"

func TestContainer_RegisterAndGet(t *testing.T) {
	c := NewContainer()
	c.Register("answer", 42)

	if got := c.Get("answer").(int); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
}

func TestContainer_LazyFactoryRunsOnce(t *testing.T) {
	c := NewContainer()
	calls := 0
	c.RegisterLazy("svc", func(ServiceRegistry) any {
		calls++
		return "built"
	})

	c.Get("svc")
	c.Get("svc")

	if calls != 1 {
		t.Errorf("factory invoked %d times, want 1", calls)
	}
}

func TestToken_TypedResolution(t *testing.T) {
	type greeter struct{ msg string }
	tok := NewToken[*greeter]("test.greeter")

	c := NewContainer()
	RegisterToken(c, tok, func(ServiceRegistry) *greeter {
		return &greeter{msg: "hi"}
	})

	g := GetToken(c, tok)
	if g.msg != "hi" {
		t.Errorf("msg = %q, want %q", g.msg, "hi")
	}
}

func TestContainer_UnknownServicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Get() on unknown name did not panic")
		}
	}()
	NewContainer().Get("missing")
}

func TestToken_FactoryCanResolveDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("prefix", "svc:")

	tok := NewToken[string]("test.composed")
	RegisterToken(c, tok, func(sr ServiceRegistry) string {
		return sr.Get("prefix").(string) + "ok"
	})

	if got := GetToken(c, tok); got != "svc:ok" {
		t.Errorf("GetToken() = %q, want %q", got, "svc:ok")
	}
}

func TestToken_NilOptionalService(t *testing.T) {
	c := NewContainer()

	type svc interface{ Name() string }
	tok := NewToken[svc]("test.optional")
	RegisterToken(c, tok, func(sr ServiceRegistry) svc {
		return nil
	})

	if got := GetToken(c, tok); got != nil {
		t.Errorf("GetToken() = %v, want nil", got)
	}
}
