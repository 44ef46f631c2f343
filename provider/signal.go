package provider

import "syscall"

// processInterrupt is the signal Stop sends before escalating to the
// SIGKILL that cancelling the process's context triggers.
var processInterrupt = syscall.SIGTERM
