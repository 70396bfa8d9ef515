package interceptor

import (
	"encoding/json"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netrelay/pkg/traffic"
)

// fakePage is a goja runtime with stub fetch and XMLHttpRequest primitives.
type fakePage struct {
	vm     *goja.Runtime
	events []string
}

const pageStubs = `
var fetchCalls = [];
function fetch(input, init) {
  fetchCalls.push({ input: input, init: init });
  return 'response-' + fetchCalls.length;
}
var xhrSent = [];
function XMLHttpRequest() { this.headers = {}; }
XMLHttpRequest.prototype.open = function (method, url) { this.method = method; this.url = url; };
XMLHttpRequest.prototype.setRequestHeader = function (k, v) { this.headers[k] = v; };
XMLHttpRequest.prototype.send = function (body) { xhrSent.push({ method: this.method, url: this.url, body: body }); };
`

func newFakePage(t *testing.T, binding string) *fakePage {
	t.Helper()
	p := &fakePage{vm: goja.New()}
	require.NoError(t, p.vm.Set("window", p.vm.GlobalObject()))
	require.NoError(t, p.vm.Set(binding, func(payload string) {
		p.events = append(p.events, payload)
	}))
	_, err := p.vm.RunString(pageStubs)
	require.NoError(t, err)
	return p
}

func (p *fakePage) inject(t *testing.T, s *Script) Status {
	t.Helper()
	v, err := p.vm.RunString(s.Source)
	require.NoError(t, err)
	raw, err := json.Marshal(v.Export())
	require.NoError(t, err)
	st, err := ParseStatus(raw)
	require.NoError(t, err)
	return st
}

func (p *fakePage) run(t *testing.T, code string) goja.Value {
	t.Helper()
	v, err := p.vm.RunString(code)
	require.NoError(t, err)
	return v
}

func (p *fakePage) captured(t *testing.T, i int) *traffic.CapturedRequest {
	t.Helper()
	require.Greater(t, len(p.events), i)
	req, err := traffic.ParseCapturedRequest(p.events[i])
	require.NoError(t, err)
	return req
}

func build(t *testing.T, skip ...string) *Script {
	t.Helper()
	s, err := Build(Options{Binding: "__netrelayEmit", Skip: skip})
	require.NoError(t, err)
	return s
}

func TestBuildRequiresBinding(t *testing.T) {
	_, err := Build(Options{})
	assert.ErrorIs(t, err, ErrEmptyBinding)
}

func TestBuildEmbedsConfig(t *testing.T) {
	s := build(t, ".png")
	assert.Equal(t, "__netrelayEmit", s.Binding)
	assert.Contains(t, s.Source, `{"binding":"__netrelayEmit","skip":[".png"]}`)
}

func TestFetchCaptureForwardsUnchanged(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	st := p.inject(t, build(t))
	assert.Equal(t, Status{Fetch: StateWrapped, XHR: StateWrapped}, st)

	v := p.run(t, `fetch('https://api.example.com/users', {
		method: 'post',
		headers: { 'Content-Type': 'application/json', 'X-Trace': 'abc' },
		body: '{"name":"a"}'
	})`)
	assert.Equal(t, "response-1", v.String())
	assert.Equal(t, int64(1), p.run(t, `fetchCalls.length`).ToInteger())
	assert.Equal(t, "post", p.run(t, `fetchCalls[0].init.method`).String())

	require.Len(t, p.events, 1)
	req := p.captured(t, 0)
	assert.Equal(t, "fetch", req.Type)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://api.example.com/users", req.URL)
	assert.Equal(t, "application/json", req.Headers.Get("content-type"))
	assert.Equal(t, "abc", req.Headers.Get("X-Trace"))
	require.NotNil(t, req.Body)
	assert.Equal(t, `{"name":"a"}`, *req.Body)
	assert.False(t, req.Timestamp.IsZero())
}

func TestFetchDefaultsAndRequestInput(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	p.inject(t, build(t))

	p.run(t, `fetch('/plain')`)
	p.run(t, `fetch({ url: 'https://example.com/req', method: 'PUT', headers: [['Accept', 'text/plain']] })`)

	require.Len(t, p.events, 2)
	first := p.captured(t, 0)
	assert.Equal(t, "GET", first.Method)
	assert.Equal(t, "/plain", first.URL)
	assert.Nil(t, first.Body)

	second := p.captured(t, 1)
	assert.Equal(t, "PUT", second.Method)
	assert.Equal(t, "https://example.com/req", second.URL)
	assert.Equal(t, "text/plain", second.Headers.Get("accept"))
}

func TestInitHeadersReplaceRequestHeaders(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	p.inject(t, build(t))

	p.run(t, `fetch({ url: 'https://example.com/a', headers: { 'X-From-Request': '1', 'Accept': 'text/html' } },
		{ headers: { 'Accept': 'application/json' } })`)
	p.run(t, `fetch({ url: 'https://example.com/b', headers: { 'X-From-Request': '1' } }, { method: 'DELETE' })`)

	require.Len(t, p.events, 2)
	replaced := p.captured(t, 0)
	assert.Equal(t, traffic.Header{"accept": "application/json"}, replaced.Headers)

	kept := p.captured(t, 1)
	assert.Equal(t, "DELETE", kept.Method)
	assert.Equal(t, "1", kept.Headers.Get("x-from-request"))
}

func TestReinjectionDoesNotDoubleWrap(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	s := build(t)
	assert.Equal(t, Status{Fetch: StateWrapped, XHR: StateWrapped}, p.inject(t, s))
	assert.Equal(t, Status{Fetch: StatePresent, XHR: StatePresent}, p.inject(t, s))
	assert.Equal(t, Status{Fetch: StatePresent, XHR: StatePresent}, p.inject(t, s))

	p.run(t, `fetch('https://example.com/once')`)
	p.run(t, `var x = new XMLHttpRequest(); x.open('GET', 'https://example.com/xhr'); x.send(null);`)

	assert.Len(t, p.events, 2)
	assert.Equal(t, int64(1), p.run(t, `fetchCalls.length`).ToInteger())
	assert.Equal(t, int64(1), p.run(t, `xhrSent.length`).ToInteger())
	assert.True(t, p.run(t, `fetch.`+Marker).ToBoolean())
}

func TestXHRCapture(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	p.inject(t, build(t))

	p.run(t, `
		var x = new XMLHttpRequest();
		x.open('delete', 'https://example.com/items/1');
		x.setRequestHeader('Accept', 'a');
		x.setRequestHeader('accept', 'b');
		x.send('payload');
	`)
	require.Len(t, p.events, 1)
	req := p.captured(t, 0)
	assert.Equal(t, "xhr", req.Type)
	assert.Equal(t, "DELETE", req.Method)
	assert.Equal(t, "https://example.com/items/1", req.URL)
	assert.Equal(t, "a, b", req.Headers.Get("Accept"))
	require.NotNil(t, req.Body)
	assert.Equal(t, "payload", *req.Body)

	// the original primitives still saw the call
	assert.Equal(t, "delete", p.run(t, `xhrSent[0].method`).String())
	assert.Equal(t, "b", p.run(t, `x.headers['accept']`).String())
}

func TestCaptureFailureDoesNotBreakPage(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	p.run(t, `__netrelayEmit = function () { throw new Error('bridge down'); };`)
	p.inject(t, build(t))

	v := p.run(t, `fetch('https://example.com/')`)
	assert.Equal(t, "response-1", v.String())
	p.run(t, `var x = new XMLHttpRequest(); x.open('GET', '/a'); x.send();`)
	assert.Equal(t, int64(1), p.run(t, `xhrSent.length`).ToInteger())
}

func TestMissingBindingIsSilent(t *testing.T) {
	p := newFakePage(t, "__otherBinding")
	p.inject(t, build(t))
	v := p.run(t, `fetch('https://example.com/')`)
	assert.Equal(t, "response-1", v.String())
	assert.Empty(t, p.events)
}

func TestSkipList(t *testing.T) {
	p := newFakePage(t, "__netrelayEmit")
	p.inject(t, build(t, ".png", "ipc.localhost"))

	p.run(t, `fetch('https://cdn.example.com/logo.png')`)
	p.run(t, `fetch('http://ipc.localhost/plugin')`)
	p.run(t, `fetch('https://api.example.com/data')`)

	require.Len(t, p.events, 1)
	assert.Equal(t, "https://api.example.com/data", p.captured(t, 0).URL)
	assert.Equal(t, int64(3), p.run(t, `fetchCalls.length`).ToInteger())
}

func TestAbsentPrimitives(t *testing.T) {
	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	v, err := vm.RunString(build(t).Source)
	require.NoError(t, err)
	raw, err := json.Marshal(v.Export())
	require.NoError(t, err)
	st, err := ParseStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, Status{Fetch: StateAbsent, XHR: StateAbsent}, st)
	assert.False(t, st.Installed())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus([]byte(`{"fetch":"present","xhr":"absent"}`))
	require.NoError(t, err)
	assert.True(t, st.Installed())

	_, err = ParseStatus(nil)
	assert.Error(t, err)
	_, err = ParseStatus([]byte(`"x"`))
	assert.Error(t, err)
}
