package modules

import "github.com/shaiso/Conveyor/internal/module"

// RegisterBuiltins регистрирует встроенные модули в реестре.
func RegisterBuiltins(r *module.Registry) {
	r.Register(NewShellModule())
	r.Register(NewHTTPModule())
	r.Register(NewJSONModule())
	r.Register(NewFSModule())
	r.Register(NewS3Module())
	r.Register(NewQueueModule())
}
