// Package dispatch resolves operation names against a device and calls them.
//
// A Table is built once from a device by reflection over the declared
// operation set. The server uses it to execute requests; the client uses the
// same declarations to reject undeclared names before touching the network.
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/tliron/commonlog"

	"temctl/device"
	"temctl/message"
)

var log = commonlog.GetLogger("temctl.dispatch")

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type methodType struct {
	op      device.Operation
	method  reflect.Value
	inTypes []reflect.Type
	numOut  int // results before the trailing error
}

// Table maps operation names to bound device methods. Calls are serialized
// with one lock so the device never observes two operations at once.
type Table struct {
	mu      sync.Mutex
	methods map[string]*methodType
}

// New builds the table for dev. Every declared operation must be implemented
// with a matching parameter count and a trailing error result.
func New(dev device.Microscope) (*Table, error) {
	if dev == nil {
		return nil, fmt.Errorf("dispatch: nil device")
	}
	rcvr := reflect.ValueOf(dev)
	t := &Table{methods: make(map[string]*methodType, len(device.Operations))}

	for _, op := range device.Operations {
		m := rcvr.MethodByName(op.MethodName())
		if !m.IsValid() {
			return nil, fmt.Errorf("dispatch: %T has no method %s", dev, op.MethodName())
		}
		mt := m.Type()
		if mt.NumIn() != len(op.Params) {
			return nil, fmt.Errorf("dispatch: %s takes %d arguments, declared %d", op.Name, mt.NumIn(), len(op.Params))
		}
		if mt.NumOut() == 0 || mt.Out(mt.NumOut()-1) != errorType {
			return nil, fmt.Errorf("dispatch: %s must return an error last", op.Name)
		}

		in := make([]reflect.Type, mt.NumIn())
		for i := range in {
			in[i] = mt.In(i)
		}
		t.methods[op.Name] = &methodType{op: op, method: m, inTypes: in, numOut: mt.NumOut() - 1}
	}
	log.Debugf("dispatch table built for %T with %d operations", dev, len(t.methods))
	return t, nil
}

// Has reports whether name is a declared operation.
func (t *Table) Has(name string) bool {
	_, ok := t.methods[name]
	return ok
}

// Len returns the number of operations in the table.
func (t *Table) Len() int {
	return len(t.methods)
}

// Call binds the request's arguments and invokes the operation. The result is
// nil for operations without results, the value itself for one result, and a
// slice for several. A panic inside the operation becomes an InternalError.
func (t *Table) Call(req *message.Request) (result any, err error) {
	mt, ok := t.methods[req.Operation]
	if !ok {
		return nil, device.Errorf(device.KindUnknownOperation, "unknown operation %q", req.Operation)
	}

	in, err := mt.bind(req.Args, req.Kwargs)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("operation %s panicked: %v", req.Operation, r)
			result, err = nil, device.Errorf(device.KindInternal, "%s: %v", req.Operation, r)
		}
	}()

	out := mt.method.Call(in)
	if e := out[mt.numOut]; !e.IsNil() {
		return nil, e.Interface().(error)
	}

	switch mt.numOut {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]any, mt.numOut)
		for i := range values {
			values[i] = out[i].Interface()
		}
		return values, nil
	}
}

// bind fills positional arguments first, then keyword arguments by name, then
// defaults for whatever is still missing.
func (mt *methodType) bind(args []json.RawMessage, kwargs map[string]json.RawMessage) ([]reflect.Value, error) {
	params := mt.op.Params
	if len(args) > len(params) {
		return nil, device.Errorf(device.KindType, "%s takes %d arguments, got %d", mt.op.Name, len(params), len(args))
	}

	in := make([]reflect.Value, len(params))
	for i, raw := range args {
		v, err := decodeArg(mt.op.Name, params[i].Name, raw, mt.inTypes[i])
		if err != nil {
			return nil, err
		}
		in[i] = v
	}

	for name, raw := range kwargs {
		i := paramIndex(params, name)
		if i < 0 {
			return nil, device.Errorf(device.KindType, "%s got an unexpected keyword argument %q", mt.op.Name, name)
		}
		if in[i].IsValid() {
			return nil, device.Errorf(device.KindType, "%s got multiple values for argument %q", mt.op.Name, name)
		}
		v, err := decodeArg(mt.op.Name, name, raw, mt.inTypes[i])
		if err != nil {
			return nil, err
		}
		in[i] = v
	}

	for i, p := range params {
		if in[i].IsValid() {
			continue
		}
		if !p.Optional {
			return nil, device.Errorf(device.KindType, "%s missing required argument %q", mt.op.Name, p.Name)
		}
		v, err := defaultArg(p, mt.inTypes[i])
		if err != nil {
			return nil, device.Errorf(device.KindInternal, "%s: %v", mt.op.Name, err)
		}
		in[i] = v
	}
	return in, nil
}

func paramIndex(params []device.Param, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

var jsonNull = []byte("null")

func decodeArg(op, name string, raw json.RawMessage, typ reflect.Type) (reflect.Value, error) {
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		switch typ.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, device.Errorf(device.KindType, "%s argument %q must not be null", op, name)
	}

	ptr := reflect.New(typ)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, device.Errorf(device.KindType, "%s argument %q: expected %s, got %s", op, name, typ, raw)
	}
	return ptr.Elem(), nil
}

func defaultArg(p device.Param, typ reflect.Type) (reflect.Value, error) {
	if p.Default == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(p.Default)
	if !v.Type().ConvertibleTo(typ) {
		return reflect.Value{}, fmt.Errorf("default for %q is %T, want %s", p.Name, p.Default, typ)
	}
	return v.Convert(typ), nil
}
