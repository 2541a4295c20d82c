package app

import (
	"github.com/gridtwin/gridtwin/core/env"
	"github.com/gridtwin/gridtwin/core/forecast"
	"github.com/gridtwin/gridtwin/core/logger"
	"github.com/gridtwin/gridtwin/core/session"
	"github.com/gridtwin/gridtwin/infra/data"
)

// StrictFactory loads the CSV frame named by the settings and builds a
// portfolio environment. Construction failures surface to the caller as
// configuration errors.
func StrictFactory() session.EnvFactory {
	return func(settings session.Settings, _ map[string]float64) (env.Environment, error) {
		series, err := data.LoadFrame(settings.DataPath)
		if err != nil {
			return nil, err
		}
		return env.NewPortfolioEnv(series)
	}
}

// DegradedFactory behaves like StrictFactory but substitutes an empty
// environment when the data cannot be loaded, keeping the API usable
// without data. The substitution is logged; choosing this factory over the
// strict one is an explicit deployment decision.
func DegradedFactory(log logger.Logger) session.EnvFactory {
	strict := StrictFactory()
	return func(settings session.Settings, overrides map[string]float64) (env.Environment, error) {
		e, err := strict(settings, overrides)
		if err == nil {
			return e, nil
		}
		log.Warnf("environment construction failed, serving empty environment: %v", err)
		return env.NewPortfolioEnv(env.Series{})
	}
}

// ForecastDecorator wraps environments with the default-horizon forecast
// decorator.
func ForecastDecorator() session.DecoratorFactory {
	return func(e env.Environment) (env.Environment, error) {
		return forecast.New(e, nil), nil
	}
}
