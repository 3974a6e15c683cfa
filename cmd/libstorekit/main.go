// Command libstorekit builds the storekit bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libstorekit.so ./cmd/libstorekit
//
// The exported functions mirror the bridge surface: register a callback, start purchases
// and restores, release delivered strings.
package main

/*
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"errors"
	"os"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

var state bridge

//export native_init
func native_init(configPath *C.char) (rc C.int) {
	defer func() {
		if r := recover(); r != nil {
			bootLog.Error().Interface("panic", r).Str("export", "native_init").Msg("export panicked")
			rc = -1
		}
	}()

	if err := state.start(goString(configPath), os.Stderr); err != nil {
		bootLog.Error().Err(err).Msg("init failed")
		return -1
	}
	return 0
}

//export native_shutdown
func native_shutdown() {
	defer recoverExport("native_shutdown")

	if err := state.stop(); err != nil {
		bootLog.Error().Err(err).Msg("shutdown failed")
	}
	if n := outstanding.Load(); n > 0 {
		bootLog.Warn().Int64("outstanding", n).Msg("delivered payloads were never freed")
	}
}

//export native_register_iap_callback
func native_register_iap_callback(cb C.iap_callback) {
	defer recoverExport("native_register_iap_callback")

	if cb == nil {
		state.setCallback(nil)
		return
	}
	state.setCallback(foreignCallback(cb))
}

//export native_purchase
func native_purchase(accountToken, productID *C.char) {
	defer recoverExport("native_purchase")

	if err := state.purchase(goString(accountToken), goString(productID)); err != nil {
		logRejected(err, "purchase")
	}
}

//export native_restore_purchase
func native_restore_purchase() {
	defer recoverExport("native_restore_purchase")

	if err := state.restore(); err != nil {
		logRejected(err, "restore")
	}
}

//export native_free_string
func native_free_string(ptr *C.char) {
	release(ptr)
}

// goString copies a caller-owned C string; NULL becomes "".
func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func logRejected(err error, operation string) {
	l := state.logger()
	if errors.Is(err, errNotStarted) || errors.Is(err, storekit.ErrManagerClosed) {
		l.Warn().Err(err).Str("operation", operation).Msg("request answered with an error envelope")
		return
	}
	l.Error().Err(err).Str("operation", operation).Msg("request rejected")
}

func recoverExport(name string) {
	if r := recover(); r != nil {
		l := state.logger()
		l.Error().Interface("panic", r).Str("export", name).Msg("export panicked")
	}
}
