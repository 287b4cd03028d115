package mapper

import (
	"studio/internal/api/handler/request"
	"studio/internal/api/handler/response"
	"studio/internal/api/models"
	"studio/internal/api/service"
	"studio/pkg"
)

// StudioMapper handles mapping between editor models and DTOs
type StudioMapper interface {
	ToNodeTypeResponse(s models.NodeTypeSchema) response.NodeType
	ToNodeTypeResponses(schemas []models.NodeTypeSchema) []response.NodeType
	ToNodeSpecs(req request.ReplaceGraph) []service.NodeSpec
	ToTrainConfig(req request.Train) models.TrainConfig
}

// StudioMapperImpl implements StudioMapper
type StudioMapperImpl struct{}

func NewStudioMapper() StudioMapper {
	return &StudioMapperImpl{}
}

func (m *StudioMapperImpl) ToNodeTypeResponse(s models.NodeTypeSchema) response.NodeType {
	out := response.NodeType{
		Type:      s.Type,
		Label:     s.Label,
		Category:  s.Category,
		Inputs:    make([]string, 0, len(s.Inputs)),
		HasOutput: s.HasOutput,
		Params:    make([]response.Param, 0, len(s.Params)),
	}
	for _, h := range s.Inputs {
		out.Inputs = append(out.Inputs, h.Name)
	}
	for _, p := range s.Params {
		out.Params = append(out.Params, response.Param{
			Name:    p.Name,
			Kind:    p.Kind,
			Default: p.Default.Interface(),
			Options: p.Enum,
			Min:     p.Min,
			Max:     p.Max,
		})
	}
	return out
}

func (m *StudioMapperImpl) ToNodeTypeResponses(schemas []models.NodeTypeSchema) []response.NodeType {
	out := make([]response.NodeType, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, m.ToNodeTypeResponse(s))
	}
	return out
}

func (m *StudioMapperImpl) ToNodeSpecs(req request.ReplaceGraph) []service.NodeSpec {
	specs := make([]service.NodeSpec, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		specs = append(specs, service.NodeSpec{
			ID:       n.ID,
			Type:     n.Type,
			Position: n.Position,
			Params:   n.Data.Params,
		})
	}
	return specs
}

// ToTrainConfig starts from the control panel defaults and applies the fields present in req.
func (m *StudioMapperImpl) ToTrainConfig(req request.Train) models.TrainConfig {
	cfg := models.DefaultTrainConfig()
	if req.Optimizer != nil {
		cfg.Optimizer = pkg.FromPtr(req.Optimizer)
	}
	if req.LearningRate != nil {
		cfg.LearningRate = pkg.FromPtr(req.LearningRate)
	}
	if req.Epochs != nil {
		cfg.Epochs = pkg.FromPtr(req.Epochs)
	}
	if req.BatchSize != nil {
		cfg.BatchSize = pkg.FromPtr(req.BatchSize)
	}
	return cfg
}
