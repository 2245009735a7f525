package mangle

import (
	"sync"
	"testing"
)

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Scheme
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"itanium", Itanium, false},
		{"GCC", Itanium, false},
		{"msvc", MSVC, false},
		{"cw", CodeWarrior, false},
		{"metrowerks", CodeWarrior, false},
		{"borland", None, true},
	}
	for _, tt := range tests {
		got, err := ParseScheme(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScheme(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScheme(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDemangleItanium(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain method", "_ZN3Foo3barEv", "Foo::bar()"},
		{"namespaced", "_ZN4game6Player4initEv", "game::Player::init()"},
		{"not mangled passes through", "main", "main"},
		{"malformed passes through", "_Zbogus!", "_Zbogus!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Demangle(tt.in, Itanium); got != tt.want {
				t.Errorf("Demangle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDemangleMSVC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"method", "?update@Entity@@QAEXH@Z", "Entity::update"},
		{"nested class", "?tick@Clock@core@@QAEXXZ", "core::Clock::tick"},
		{"constructor", "??0Widget@@QAE@XZ", "Widget::Widget"},
		{"destructor", "??1Widget@@QAE@XZ", "Widget::~Widget"},
		{"assignment operator", "??4Widget@@QAEAAV0@ABV0@@Z", "Widget::operator="},
		{"not decorated", "DirectDrawCreate", "DirectDrawCreate"},
		{"unterminated", "?broken@name", "?broken@name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Demangle(tt.in, MSVC); got != tt.want {
				t.Errorf("Demangle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDemangleCodeWarrior(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"method", "update__7MyClassFv", "MyClass::update()"},
		{"nested scopes", "init__Q24Game6PlayerFv", "Game::Player::init()"},
		{"constructor", "__ct__9SomeClassFv", "SomeClass::SomeClass()"},
		{"destructor", "__dt__9SomeClassFv", "SomeClass::~SomeClass()"},
		{"const method", "size__6VectorCFv", "Vector::size()"},
		{"scoped data", "instance__7Manager", "Manager::instance"},
		{"plain C symbol", "memcpy", "memcpy"},
		{"bad length prefix", "f__99ZFv", "f__99ZFv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Demangle(tt.in, CodeWarrior); got != tt.want {
				t.Errorf("Demangle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDemangleNoneIsIdentity(t *testing.T) {
	for _, s := range []string{"", "_ZN3Foo3barEv", "?x@@3HA"} {
		if got := Demangle(s, None); got != s {
			t.Errorf("Demangle(%q, None) = %q", s, got)
		}
	}
}

func TestDemangleConcurrent(t *testing.T) {
	// The cache must be safe under concurrent lookups of the same and
	// differing names.
	names := []string{
		"_ZN3Foo3barEv",
		"_ZN4game6Player4initEv",
		"plain_symbol",
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, n := range names {
					Demangle(n, Itanium)
				}
			}
		}()
	}
	wg.Wait()

	if got := Demangle("_ZN3Foo3barEv", Itanium); got != "Foo::bar()" {
		t.Errorf("post-race Demangle = %q", got)
	}
}
