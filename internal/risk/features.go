// Package risk 小时级特征构建与风险评分服务调用
package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"babyguardian-vitals/internal/models"
)

const expectedPerHour = 60

// ErrInsufficientData 窗口内有效数据不足
var ErrInsufficientData = errors.New("insufficient data")

// Features 扁平特征 JSON，原样发送给评分服务
type Features map[string]interface{}

// Subject 可选的静态个体信息
type Subject struct {
	SubjectID *int
	Age       *int
	SexBin    *int
	HeightCM  *int
	WeightKG  *int
}

// BuildHourFeatures 由一小时窗口内按时间升序的读数构建特征
// 数值为 0 视为缺失；valid_count_1h 以体温为准，少于 minRequired 时返回 ErrInsufficientData
func BuildHourFeatures(deviceID string, hourTs time.Time, subject Subject, rows []models.CleanReading, minRequired int) (Features, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data found in this hour window", ErrInsufficientData)
	}

	temps := make([]float64, 0, len(rows))
	spo2s := make([]float64, 0, len(rows))
	hrs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.TemperatureC != 0 {
			temps = append(temps, r.TemperatureC)
		}
		if r.SpO2 != 0 {
			spo2s = append(spo2s, float64(r.SpO2))
		}
		if r.HeartRate != 0 {
			hrs = append(hrs, float64(r.HeartRate))
		}
	}

	validCount := len(temps)
	if validCount < minRequired {
		return nil, fmt.Errorf("%w: not enough valid points for 1h features, valid_count_1h=%d", ErrInsufficientData, validCount)
	}

	out := Features{
		"deviceId": deviceID,
		"hour_ts":  hourTs.UTC().Format(time.RFC3339),
	}
	if subject.SubjectID != nil {
		out["subject_id"] = *subject.SubjectID
	} else {
		out["subject_id"] = nil
	}
	putIfSet(out, "age", subject.Age)
	putIfSet(out, "sex_bin", subject.SexBin)
	putIfSet(out, "height_cm", subject.HeightCM)
	putIfSet(out, "weight_kg", subject.WeightKG)

	utc := hourTs.UTC()
	hour := float64(utc.Hour()) + float64(utc.Minute())/60.0
	out["hour_sin"] = math.Sin(2 * math.Pi * hour / 24.0)
	out["hour_cos"] = math.Cos(2 * math.Pi * hour / 24.0)

	out["valid_count_1h"] = validCount
	out["missing_ratio_1h"] = math.Max(0, 1-float64(validCount)/expectedPerHour)

	addStats(out, "temp", temps)
	addStats(out, "spo2", spo2s)
	addStats(out, "hr", hrs)
	return out, nil
}

func putIfSet(out Features, key string, v *int) {
	if v != nil {
		out[key] = *v
	}
}

// addStats 空信号全部填 0，评分服务不接受缺失特征
func addStats(out Features, name string, v []float64) {
	var mean, std, lo, hi, first, last float64
	if len(v) > 0 {
		lo, hi = v[0], v[0]
		sum := 0.0
		for _, x := range v {
			sum += x
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		mean = sum / float64(len(v))
		std = sampleStd(v, mean)
		first = v[0]
		last = v[len(v)-1]
	}

	out[name+"_mean_1h"] = mean
	out[name+"_std_1h"] = std
	out[name+"_min_1h"] = lo
	out[name+"_max_1h"] = hi
	out[name+"_first_1h"] = first
	out[name+"_last_1h"] = last
	out[name+"_slope_1h"] = last - first
}

// sampleStd 样本标准差（ddof=1）
func sampleStd(v []float64, mean float64) float64 {
	n := len(v)
	if n <= 1 {
		return 0
	}
	ss := 0.0
	for _, x := range v {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
