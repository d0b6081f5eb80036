package solo

import (
	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/engine"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// Region proportions in percent of device capacity. With both device classes
// attached, fast devices hold the metadata, log and index regions and data
// devices hold the replication region. With a single class everything shares
// one device set.
const (
	fastMetaPct  = 9
	fastLogPct   = 45
	fastIndexPct = 45
	dataReplPct  = 95

	soloMetaPct  = 5
	soloLogPct   = 10
	soloIndexPct = 5
	soloReplPct  = 75
)

// Layout is the formatted region budget across all usable devices.
type Layout struct {
	MetaBytes  uint64
	LogBytes   uint64
	IndexBytes uint64
	ReplBytes  uint64
}

// FormatLayout classifies the attached devices and carves the region budget.
// Unsupported devices are skipped with a warning; zero usable devices aborts
// startup.
func FormatLayout(devices []engine.Device) (*Layout, error) {
	var fastCap, dataCap uint64

	for _, dev := range devices {
		typ := dev.Type
		if typ == engine.DevTypeAutoDetect {
			typ = engine.DetectDeviceType(dev.Path)
		}

		if typ == engine.DevTypeUnsupported {
			logger.Warn("Skipping unsupported device", logger.KeyDevice, dev.Path)
			continue
		}

		size, err := deviceCapacity(dev.Path)
		if err != nil {
			logger.Warn("Skipping unreadable device",
				logger.KeyDevice, dev.Path, logger.KeyError, err.Error())
			continue
		}

		logger.Info("Attached device",
			logger.KeyDevice, dev.Path,
			logger.KeyDevType, typ.String(),
			logger.KeySize, size)

		switch typ {
		case engine.DevTypeNVME:
			fastCap += size
		case engine.DevTypeHDD:
			dataCap += size
		}
	}

	if fastCap == 0 && dataCap == 0 {
		return nil, volerrors.NewConfigurationError("no supported storage devices attached")
	}

	if fastCap > 0 && dataCap > 0 {
		return &Layout{
			MetaBytes:  fastCap * fastMetaPct / 100,
			LogBytes:   fastCap * fastLogPct / 100,
			IndexBytes: fastCap * fastIndexPct / 100,
			ReplBytes:  dataCap * dataReplPct / 100,
		}, nil
	}

	total := fastCap + dataCap
	return &Layout{
		MetaBytes:  total * soloMetaPct / 100,
		LogBytes:   total * soloLogPct / 100,
		IndexBytes: total * soloIndexPct / 100,
		ReplBytes:  total * soloReplPct / 100,
	}, nil
}
