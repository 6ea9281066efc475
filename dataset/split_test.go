package dataset

import (
	"math"
	"sort"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

func makeDataset(n int) *Dataset {
	data := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		// 目的変数に行番号を埋め込んで行の重複・欠落を検出する
		data.SetRow(i, []float64{float64(i), float64(2 * i), float64(i)})
	}
	return &Dataset{Columns: []string{"a", "b", "target"}, Data: data}
}

func TestTrainTestSplit_Counts(t *testing.T) {
	tests := []struct {
		n, wantTrain, wantTest int
		testSize               float64
	}{
		{1000, 800, 200, 0.2},
		{10, 8, 2, 0.2},
		{11, 8, 3, 0.2}, // ceil(2.2) = 3
		{5, 2, 3, 0.5},
	}
	for _, tt := range tests {
		s, err := TrainTestSplit(makeDataset(tt.n), tt.testSize)
		if err != nil {
			t.Fatal(err)
		}
		trainRows, _ := s.XTrain.Dims()
		testRows, _ := s.XTest.Dims()
		if trainRows != tt.wantTrain || testRows != tt.wantTest {
			t.Errorf("n=%d: train=%d test=%d, want %d/%d", tt.n, trainRows, testRows, tt.wantTrain, tt.wantTest)
		}
		if trainRows+testRows != tt.n {
			t.Errorf("n=%d: counts do not sum", tt.n)
		}
	}
}

func TestTrainTestSplit_Partition(t *testing.T) {
	s, err := TrainTestSplit(makeDataset(50), DefaultTestSize, WithRandomState(7))
	if err != nil {
		t.Fatal(err)
	}

	if s.TargetName != "target" || len(s.FeatureNames) != 2 {
		t.Errorf("names: features=%v target=%q", s.FeatureNames, s.TargetName)
	}
	if _, c := s.XTrain.Dims(); c != 2 {
		t.Errorf("feature columns = %d, want 2", c)
	}

	var ids []int
	for _, y := range []*mat.Dense{s.YTrain, s.YTest} {
		r, _ := y.Dims()
		for i := 0; i < r; i++ {
			ids = append(ids, int(y.At(i, 0)))
		}
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i {
			t.Fatalf("rows are not a disjoint partition: %v", ids)
		}
	}

	// 特徴量と目的変数の対応が保たれる
	if s.XTest.At(0, 0) != s.YTest.At(0, 0) {
		t.Error("features and target of a row were separated")
	}

	again, _ := TrainTestSplit(makeDataset(50), DefaultTestSize, WithRandomState(7))
	if !mat.Equal(s.YTest, again.YTest) {
		t.Error("same seed must reproduce the split")
	}
}

func TestTrainTestSplit_Errors(t *testing.T) {
	for _, ts := range []float64{0, 1, -0.1, math.NaN()} {
		_, err := TrainTestSplit(makeDataset(10), ts)
		var ve *errors.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("test_size=%v: expected ValidationError, got %v", ts, err)
		}
	}

	_, err := TrainTestSplit(makeDataset(1), 0.2)
	var ie *errors.InsufficientDataError
	if !errors.As(err, &ie) {
		t.Errorf("expected InsufficientDataError for one row, got %v", err)
	}
}
