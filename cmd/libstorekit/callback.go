package main

/*
#include <stdlib.h>
#include "bridge.h"

static void invoke_iap_callback(iap_callback cb, char *payload) {
	cb(payload);
}
*/
import "C"

import (
	"sync/atomic"
	"unsafe"
)

// outstanding counts payload strings handed to the caller and not yet freed.
var outstanding atomic.Int64

// foreignCallback adapts a C function pointer to storekit.Callback. Each payload is copied
// into C memory that the caller releases through native_free_string.
func foreignCallback(cb C.iap_callback) func(payload []byte) {
	return func(payload []byte) {
		C.invoke_iap_callback(cb, handOut(payload))
	}
}

// handOut copies payload into a C string owned by the caller.
func handOut(payload []byte) *C.char {
	cs := C.CString(string(payload))
	outstanding.Add(1)
	return cs
}

// release frees a string from handOut. NULL is ignored.
func release(ptr *C.char) {
	if ptr == nil {
		return
	}
	C.free(unsafe.Pointer(ptr))
	outstanding.Add(-1)
}
