package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Evaluator runs the single-algorithm decision pipeline: categorize risk,
// resolve lipid targets, classify current therapy, recommend the next
// intensification step and assess coverage eligibility. All collaborators
// are injected; there is no hidden global instance.
type Evaluator struct {
	logger      *logrus.Logger
	categorizer *RiskCategorizer
	targets     *TargetResolver
	therapy     *TherapyClassifier
	intensify   *IntensificationEngine
	eligibility *EligibilityEngine

	cache    domain.EvaluationCache // optional
	notifier domain.Notifier        // optional
	store    domain.EvaluationStore // optional
	cacheTTL time.Duration
}

// NewEvaluator creates a new pipeline evaluator. cache, notifier and store
// may be nil; the pipeline then runs uncached, silent and unpersisted.
func NewEvaluator(
	logger *logrus.Logger,
	meds domain.MedicationDatabase,
	cache domain.EvaluationCache,
	notifier domain.Notifier,
	store domain.EvaluationStore,
	cacheTTL time.Duration,
) *Evaluator {
	eligibility := NewEligibilityEngine(logger)
	return &Evaluator{
		logger:      logger,
		categorizer: NewRiskCategorizer(logger),
		targets:     NewTargetResolver(logger),
		therapy:     NewTherapyClassifier(logger, meds),
		intensify:   NewIntensificationEngine(logger, eligibility),
		eligibility: eligibility,
		cache:       cache,
		notifier:    notifier,
		store:       store,
		cacheTTL:    cacheTTL,
	}
}

// Eligibility exposes the coverage eligibility engine for standalone
// assessments.
func (ev *Evaluator) Eligibility() *EligibilityEngine { return ev.eligibility }

// Therapy exposes the therapy state classifier.
func (ev *Evaluator) Therapy() *TherapyClassifier { return ev.therapy }

// Categorizer exposes the risk categorizer.
func (ev *Evaluator) Categorizer() *RiskCategorizer { return ev.categorizer }

// Evaluate runs the full pipeline for one risk algorithm. Structurally
// invalid input (missing age/sex) is a hard failure; an algorithm failure is
// returned as an AlgorithmError for the orchestrator to report on that
// branch; everything else degrades into warnings on the result.
func (ev *Evaluator) Evaluate(ctx context.Context, profile *domain.PatientProfile, algorithm domain.RiskAlgorithm) (*domain.EvaluationResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	// Downstream components read a defensive copy, never the caller's
	// snapshot.
	profile = profile.Clone()
	key := ContentKey(profile, algorithm.ID())

	if ev.cache != nil {
		if cached, found, err := ev.cache.Get(ctx, key); err == nil && found {
			ev.logger.WithFields(logrus.Fields{
				"algorithm": algorithm.ID().String(),
				"cache_key": key[:12],
			}).Debug("Evaluation cache hit")
			return cached, nil
		}
	}

	risk, err := algorithm.ComputeRisk(ctx, MapProfile(profile))
	if err != nil {
		algErr := domain.NewAlgorithmError(algorithm.ID(), err)
		ev.publish(domain.Event{
			Type:      "evaluation.failed",
			Algorithm: algorithm.ID(),
			Error:     algErr.Error(),
			Timestamp: time.Now().UTC(),
		})
		return nil, algErr
	}

	result := ev.buildResult(profile, algorithm.ID(), risk)

	if ev.cache != nil {
		if err := ev.cache.Set(ctx, key, result, ev.cacheTTL); err != nil {
			ev.logger.WithError(err).Warn("Failed to cache evaluation result")
		}
	}
	ev.persist(ctx, key, result)
	ev.publish(domain.Event{
		Type:         "evaluation.completed",
		EvaluationID: result.ID,
		Algorithm:    result.Algorithm,
		Category:     result.Category,
		Timestamp:    result.CreatedAt,
	})

	return result, nil
}

func (ev *Evaluator) buildResult(profile *domain.PatientProfile, id domain.AlgorithmID, risk *domain.RiskResult) *domain.EvaluationResult {
	start := time.Now()

	riskFraction := risk.TenYearRiskPercent / 100
	category := ev.categorizer.Categorize(profile, riskFraction)
	targets := ev.targets.Resolve(category, profile)
	therapy := ev.therapy.Classify(profile.CurrentMedications)

	var warnings []string
	targetMet := false
	switch {
	case targets.AlternativeGoal:
		targetMet = true
	case profile.LDL <= 0:
		warnings = append(warnings, "LDL missing; target attainment unknown")
	default:
		targetMet = profile.LDL <= targets.LDLMax
	}

	recommendation := ev.intensify.NextStep(profile, &therapy, category, targets, targetMet)

	eligibility := recommendation.Eligibility
	if eligibility == nil {
		eligibility = ev.eligibility.Assess(profile, &therapy)
	}

	risk.Category = category

	result := &domain.EvaluationResult{
		ID:             uuid.NewString(),
		Algorithm:      id,
		Risk:           *risk,
		Category:       category,
		Targets:        targets,
		Therapy:        therapy,
		TargetMet:      targetMet,
		Recommendation: recommendation,
		Eligibility:    eligibility,
		Warnings:       warnings,
		CreatedAt:      time.Now().UTC(),
	}

	ev.logger.WithFields(logrus.Fields{
		"evaluation_id":   result.ID,
		"algorithm":       id.String(),
		"risk_category":   category.String(),
		"target_met":      targetMet,
		"eligible":        eligibility.Eligible,
		"processing_time": time.Since(start),
	}).Info("Evaluation completed")

	return result
}

func (ev *Evaluator) publish(event domain.Event) {
	if ev.notifier != nil {
		ev.notifier.Publish(event)
	}
}

func (ev *Evaluator) persist(ctx context.Context, key string, result *domain.EvaluationResult) {
	if ev.store == nil {
		return
	}
	record := &domain.EvaluationRecord{
		ID:          result.ID,
		PatientHash: key,
		Algorithm:   result.Algorithm,
		Category:    result.Category,
		Eligible:    result.Eligibility != nil && result.Eligibility.Eligible,
		CreatedAt:   result.CreatedAt,
	}
	if err := ev.store.Save(ctx, record); err != nil {
		ev.logger.WithError(err).Warn("Failed to persist evaluation record")
	}
}

// MapProfile maps a validated PatientProfile into the input shape the
// external risk-score algorithms consume.
func MapProfile(p *domain.PatientProfile) *domain.NormalizedProfile {
	conditions := p.ConditionSet()
	return &domain.NormalizedProfile{
		Age:                 p.Age,
		Sex:                 p.Sex,
		Ethnicity:           p.Ethnicity,
		TotalCholesterol:    p.TotalCholesterol,
		HDL:                 p.HDL,
		SystolicBP:          p.SystolicBP,
		Smoker:              p.Smoker,
		Diabetes:            conditions.HasDiabetes(),
		OnBPTreatment:       p.OnBPTreatment,
		AtrialFibrillation:  p.AtrialFibrillation,
		RheumatoidArthritis: p.RheumatoidArthritis,
		CKD:                 conditions.HasCKD(),
		SLE:                 p.SLE,
		Migraine:            p.Migraine,
		SevereMentalIllness: p.SevereMentalIllness,
		FamilyHistoryCVD:    p.FamilyHistoryPrematureASCVD,
	}
}

// ContentKey builds the deterministic cache/audit key: a sha256 hash of the
// full profile JSON plus the algorithm identifier. Every clinical input
// participates in the hash, so profiles that differ in any field never share
// a key.
func ContentKey(p *domain.PatientProfile, id domain.AlgorithmID) string {
	data, _ := json.Marshal(p)
	data = append(data, []byte(id)...)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("eval:%s:%x", id, hash[:16])
}
