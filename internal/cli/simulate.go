package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"procurement-signals/internal/app"
)

var (
	simulateMaterial  string
	simulatePrevious  float64
	simulateCurrent   float64
	simulateThreshold float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并触发价格告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(simulateMaterial) == "" {
			return errors.New("--material 不能为空")
		}
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Material:     simulateMaterial,
			Previous:     simulatePrevious,
			Current:      simulateCurrent,
			ThresholdPct: simulateThreshold,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMaterial, "material", "", "物料名称")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "上一次价格")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 0, "变动阈值 % (默认取配置)")
}
