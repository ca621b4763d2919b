package module_test

import (
	"net/http"
	"testing"

	"github.com/artpar/modgate/core/module"
	"github.com/artpar/modgate/core/validate"
)

type fakeService struct{ name string }

func (f fakeService) Descriptor() module.Descriptor { return module.NewService(f.name).Build() }

func TestRouterBuilder(t *testing.T) {
	b := module.NewRouter("users").
		Priority(10).
		CORS(module.CORSPolicy{AllowedOrigins: []string{"https://app.example.com"}}).
		Get("/users/{id}", "Show").
		Post("/users", "Create", validate.Body(validate.Key("name", validate.String()))).
		Use("/users", "Audit")

	d := b.Build()

	if d.Name() != "users" || d.Kind() != module.KindRouter || d.Priority() != 10 {
		t.Fatalf("unexpected descriptor %s/%s/%d", d.Name(), d.Kind(), d.Priority())
	}

	routes := d.Routes()
	if len(routes) != 3 {
		t.Fatalf("got %d routes, want 3", len(routes))
	}
	if routes[0].Method != http.MethodGet || routes[0].Handler != "Show" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if len(routes[1].Rules) != 1 {
		t.Errorf("routes[1] rules = %d, want 1", len(routes[1].Rules))
	}
	if routes[2].Method != "" {
		t.Errorf("Use should declare a method-less route, got %q", routes[2].Method)
	}
}

func TestDescriptor_Immutable(t *testing.T) {
	b := module.NewRouter("r").
		CORS(module.CORSPolicy{AllowedOrigins: []string{"https://a"}}).
		Get("/a", "A")
	d := b.Build()

	b.Get("/b", "B").Priority(99)
	if d.RouteCount() != 1 || d.Priority() != 0 {
		t.Error("builder changes after Build must not leak into the descriptor")
	}

	routes := d.Routes()
	routes[0].Path = "/mutated"
	if d.Routes()[0].Path != "/a" {
		t.Error("Routes must return a copy")
	}

	p := d.CORS()
	p.AllowedOrigins[0] = "https://evil"
	if d.CORS().AllowedOrigins[0] != "https://a" {
		t.Error("CORS must return a copy")
	}
}

func TestServices_Lookup(t *testing.T) {
	s := module.Services{"db": fakeService{name: "db"}}

	got, ok := module.Lookup[fakeService](s, "db")
	if !ok || got.name != "db" {
		t.Errorf("Lookup = %v, %v", got, ok)
	}
	if _, ok := module.Lookup[fakeService](s, "cache"); ok {
		t.Error("missing service should not resolve")
	}
	if _, ok := module.Lookup[module.Initializer](s, "db"); ok {
		t.Error("type mismatch should not resolve")
	}
}
