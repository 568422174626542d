package watchlist

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validInstrument() Instrument {
	return Instrument{
		Code:           "600036.SH",
		Name:           "招商银行",
		UpperThreshold: decimal.NewFromInt(50),
		LowerThreshold: decimal.NewFromInt(40),
		OwnerEmail:     "owner@example.com",
	}
}

func TestInstrumentValidateOK(t *testing.T) {
	if err := validInstrument().Validate(); err != nil {
		t.Fatalf("合法标的不应报错: %v", err)
	}
}

func TestInstrumentValidateCode(t *testing.T) {
	cases := []string{"", "600036", "600036.sh", "60003.SH", "600036.SHH"}
	for _, code := range cases {
		inst := validInstrument()
		inst.Code = code
		if err := inst.Validate(); err == nil {
			t.Fatalf("代码 %q 应校验失败", code)
		}
	}
}

func TestInstrumentValidateName(t *testing.T) {
	inst := validInstrument()
	inst.Name = ""
	if err := inst.Validate(); err == nil {
		t.Fatal("空名称应校验失败")
	}
}

func TestInstrumentValidateEmail(t *testing.T) {
	inst := validInstrument()
	inst.OwnerEmail = "not-an-email"
	if err := inst.Validate(); err == nil {
		t.Fatal("非法邮箱应校验失败")
	}

	// 邮箱可留空，由全局通道兜底
	inst.OwnerEmail = ""
	if err := inst.Validate(); err != nil {
		t.Fatalf("空邮箱应允许: %v", err)
	}
}

func TestValidateThresholds(t *testing.T) {
	if err := ValidateThresholds(decimal.NewFromInt(50), decimal.NewFromInt(40)); err != nil {
		t.Fatalf("正常阈值对不应报错: %v", err)
	}
	if err := ValidateThresholds(decimal.NewFromInt(40), decimal.NewFromInt(50)); err == nil {
		t.Fatal("lower >= upper 应报错")
	}
	if err := ValidateThresholds(decimal.NewFromInt(50), decimal.NewFromInt(50)); err == nil {
		t.Fatal("lower == upper 应报错")
	}
	if err := ValidateThresholds(decimal.NewFromInt(50), decimal.Zero); err == nil {
		t.Fatal("非正阈值应报错")
	}
}
