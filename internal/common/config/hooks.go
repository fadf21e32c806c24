package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// CustomHooks are passed to viper.Unmarshal. Passing any hook replaces viper's defaults, so the duration and slice
// hooks viper would otherwise install are repeated here.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		DecimalDecodeHook(),
		ResourceVectorDecodeHook(),
	)),
}

// DecimalDecodeHook decodes numbers and numeric strings into decimal.Decimal.
func DecimalDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		d, err := decimal.NewFromString(fmt.Sprintf("%v", data))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return d, nil
	}
}

// ResourceVectorDecodeHook decodes a map of dimension name to quantity, e.g. {cpu: 4, memory: 8192}, into a
// resources.Vector.
func ResourceVectorDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(resources.Vector{}) || f.Kind() != reflect.Map {
			return data, nil
		}
		quantities := make(map[string]string)
		iter := reflect.ValueOf(data).MapRange()
		for iter.Next() {
			quantities[fmt.Sprintf("%v", iter.Key().Interface())] = fmt.Sprintf("%v", iter.Value().Interface())
		}
		return resources.FromStringMap(quantities)
	}
}
