// Package dylib binds an engine shared library through purego, without cgo.
//
// The library must export the lk_* entry points: every call takes foreign
// buffer addresses and lengths, writes its results through out parameters,
// and returns a status code plus an optional message that is released with
// lk_free_error. Objects are released with lk_free.
//
// The library is looked up in LABELKIT_ENGINE_LIB, then in the labelkit data
// directory and the usual system library paths.
package dylib
