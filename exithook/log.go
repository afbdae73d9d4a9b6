package exithook

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("temctl.exithook")
