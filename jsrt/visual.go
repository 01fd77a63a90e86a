package jsrt

import "github.com/dop251/goja"

// installVisualObject defines the VisualObject constructor. It copies the
// options object onto the new instance and registers it when it has an id.
//
//	const box = new VisualObject({ id: "box", width: 10 });
//	document.getElementById("box") === box; // true
func (r *Runtime) installVisualObject() error {
	ctor := r.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		this := call.This
		r.set(this, "x", 0)
		r.set(this, "y", 0)
		r.set(this, "visible", true)

		if opts := call.Argument(0); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
			o := opts.ToObject(r.vm)
			for _, k := range o.Keys() {
				r.set(this, k, o.Get(k))
			}
		}
		if id, ok := elementID(this); ok {
			r.registry.Register(id, this)
		}
		return nil
	}).(*goja.Object)

	proto := ctor.Get("prototype").ToObject(r.vm)
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"move_to": func(call goja.FunctionCall) goja.Value {
			this := call.This.ToObject(r.vm)
			r.set(this, "x", call.Argument(0))
			r.set(this, "y", call.Argument(1))
			return this
		},
		"show": func(call goja.FunctionCall) goja.Value {
			this := call.This.ToObject(r.vm)
			r.set(this, "visible", true)
			return this
		},
		"hide": func(call goja.FunctionCall) goja.Value {
			this := call.This.ToObject(r.vm)
			r.set(this, "visible", false)
			return this
		},
		"remove": func(call goja.FunctionCall) goja.Value {
			id, ok := elementID(call.This.ToObject(r.vm))
			return r.vm.ToValue(ok && r.registry.Remove(id))
		},
	}
	for name, fn := range methods {
		if err := proto.Set(name, fn); err != nil {
			return err
		}
	}
	return r.vm.Set("VisualObject", ctor)
}

func elementID(obj *goja.Object) (string, bool) {
	id := obj.Get("id")
	if id == nil || goja.IsUndefined(id) || goja.IsNull(id) {
		return "", false
	}
	return id.String(), true
}

// set assigns a property, throwing into the VM on failure.
func (r *Runtime) set(obj *goja.Object, key string, value any) {
	if err := obj.Set(key, value); err != nil {
		panic(r.vm.NewGoError(err))
	}
}
