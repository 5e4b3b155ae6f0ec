package walkthrough

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-tabletop/core/walkthrough"

var logger = otelslog.NewLogger(scopeName)
