package demux

import "github.com/avcore/player/internal/log"

var pkgLogger = log.For("demux")
